package domain

import (
	"fmt"
	"strings"
)

// Topic — элемент фиксированной тематической таксономии.
type Topic string

const (
	TopicTechnology    Topic = "technology"
	TopicScience       Topic = "science"
	TopicBusiness      Topic = "business"
	TopicFinance       Topic = "finance"
	TopicPolitics      Topic = "politics"
	TopicWorld         Topic = "world"
	TopicHealth        Topic = "health"
	TopicEntertainment Topic = "entertainment"
	TopicMovies        Topic = "movies"
	TopicTVShows       Topic = "tv_shows"
	TopicMusic         Topic = "music"
	TopicGaming        Topic = "gaming"
	TopicAnime         Topic = "anime"
	TopicSports        Topic = "sports"
	TopicFood          Topic = "food"
	TopicTravel        Topic = "travel"
	TopicFashion       Topic = "fashion"
	TopicArt           Topic = "art"
	TopicProgramming   Topic = "programming"
	TopicDesign        Topic = "design"
	TopicEducation     Topic = "education"
	TopicDiscussion    Topic = "discussion"
)

// AllTopics перечисляет темы в порядке объявления. Порядок используется
// как детерминированный tie-break при сортировке вовлечённости.
var AllTopics = []Topic{
	TopicTechnology, TopicScience, TopicBusiness, TopicFinance, TopicPolitics, TopicWorld, TopicHealth,
	TopicEntertainment, TopicMovies, TopicTVShows, TopicMusic, TopicGaming, TopicAnime,
	TopicSports, TopicFood, TopicTravel, TopicFashion, TopicArt,
	TopicProgramming, TopicDesign, TopicEducation, TopicDiscussion,
}

// DefaultTopics используются, когда пользователь ничего не выбрал или истории мало.
var DefaultTopics = []Topic{TopicTechnology, TopicEntertainment, TopicMovies, TopicScience, TopicGaming}

// TopicMeta — презентационные данные темы.
type TopicMeta struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var topicMeta = map[Topic]TopicMeta{
	TopicTechnology:    {Label: "Technology", Icon: "Cpu", Color: "#3b82f6"},
	TopicScience:       {Label: "Science", Icon: "Flask", Color: "#8b5cf6"},
	TopicBusiness:      {Label: "Business", Icon: "Briefcase", Color: "#6366f1"},
	TopicFinance:       {Label: "Finance", Icon: "DollarSign", Color: "#10b981"},
	TopicPolitics:      {Label: "Politics", Icon: "Landmark", Color: "#ef4444"},
	TopicWorld:         {Label: "World", Icon: "Globe", Color: "#0ea5e9"},
	TopicHealth:        {Label: "Health", Icon: "Heart", Color: "#ec4899"},
	TopicEntertainment: {Label: "Entertainment", Icon: "Sparkles", Color: "#f59e0b"},
	TopicMovies:        {Label: "Movies", Icon: "Film", Color: "#f97316"},
	TopicTVShows:       {Label: "TV Shows", Icon: "Tv", Color: "#84cc16"},
	TopicMusic:         {Label: "Music", Icon: "Music", Color: "#a855f7"},
	TopicGaming:        {Label: "Gaming", Icon: "Gamepad2", Color: "#22c55e"},
	TopicAnime:         {Label: "Anime", Icon: "Cherry", Color: "#f43f5e"},
	TopicSports:        {Label: "Sports", Icon: "Trophy", Color: "#eab308"},
	TopicFood:          {Label: "Food", Icon: "UtensilsCrossed", Color: "#f97316"},
	TopicTravel:        {Label: "Travel", Icon: "Plane", Color: "#06b6d4"},
	TopicFashion:       {Label: "Fashion", Icon: "Shirt", Color: "#d946ef"},
	TopicArt:           {Label: "Art", Icon: "Palette", Color: "#f472b6"},
	TopicProgramming:   {Label: "Programming", Icon: "Code", Color: "#14b8a6"},
	TopicDesign:        {Label: "Design", Icon: "Figma", Color: "#8b5cf6"},
	TopicEducation:     {Label: "Education", Icon: "GraduationCap", Color: "#0284c7"},
	TopicDiscussion:    {Label: "Discussion", Icon: "MessageCircle", Color: "#64748b"},
}

// Meta возвращает презентационные данные темы.
func (t Topic) Meta() TopicMeta {
	if meta, ok := topicMeta[t]; ok {
		return meta
	}
	return TopicMeta{Label: string(t), Icon: "Tag", Color: "#6b7280"}
}

// Valid сообщает, входит ли тема в таксономию.
func (t Topic) Valid() bool {
	_, ok := topicMeta[t]
	return ok
}

// TopicIndex возвращает позицию темы в порядке объявления или -1.
func TopicIndex(t Topic) int {
	for i, candidate := range AllTopics {
		if candidate == t {
			return i
		}
	}
	return -1
}

// ParseTopic разбирает тему из пользовательского ввода.
func ParseTopic(raw string) (Topic, error) {
	t := Topic(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", NewConfigError(fmt.Sprintf("неизвестная тема %q", raw))
	}
	return t, nil
}

// ParseTopics разбирает список тем, убирая пустые значения и повторы с сохранением порядка.
func ParseTopics(raw []string) ([]Topic, error) {
	seen := make(map[Topic]struct{}, len(raw))
	out := make([]Topic, 0, len(raw))
	for _, item := range raw {
		if strings.TrimSpace(item) == "" {
			continue
		}
		t, err := ParseTopic(item)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// ContainsTopic проверяет вхождение темы в список.
func ContainsTopic(topics []Topic, t Topic) bool {
	for _, candidate := range topics {
		if candidate == t {
			return true
		}
	}
	return false
}

// ExcludeTopics возвращает topics без тем из excluded.
func ExcludeTopics(topics, excluded []Topic) []Topic {
	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		if !ContainsTopic(excluded, t) {
			out = append(out, t)
		}
	}
	return out
}
