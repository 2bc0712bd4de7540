package domain

import (
	"strconv"
	"strings"
)

var newsCategoryTopics = map[string]Topic{
	"technology":    TopicTechnology,
	"science":       TopicScience,
	"business":      TopicBusiness,
	"entertainment": TopicEntertainment,
	"sports":        TopicSports,
	"health":        TopicHealth,
	"general":       TopicWorld,
}

// NewsCategories — рубрики заголовков, которые понимает новостной провайдер.
var NewsCategories = []string{"general", "business", "entertainment", "health", "science", "sports", "technology"}

var genreTopics = map[int]Topic{
	28:    TopicMovies,
	12:    TopicMovies,
	16:    TopicAnime,
	35:    TopicEntertainment,
	80:    TopicMovies,
	99:    TopicEducation,
	18:    TopicMovies,
	10751: TopicEntertainment,
	14:    TopicMovies,
	36:    TopicEducation,
	27:    TopicMovies,
	10402: TopicMusic,
	9648:  TopicMovies,
	10749: TopicEntertainment,
	878:   TopicScience,
	10770: TopicTVShows,
	53:    TopicMovies,
	10752: TopicMovies,
	37:    TopicMovies,
}

var genreNames = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
	10759: "Action & Adventure",
	10762: "Kids",
	10763: "News",
	10764: "Reality",
	10765: "Sci-Fi & Fantasy",
	10766: "Soap",
	10767: "Talk",
	10768: "War & Politics",
}

var communityTopics = map[string]Topic{
	"technology":      TopicTechnology,
	"programming":     TopicProgramming,
	"webdev":          TopicProgramming,
	"javascript":      TopicProgramming,
	"reactjs":         TopicProgramming,
	"science":         TopicScience,
	"movies":          TopicMovies,
	"television":      TopicTVShows,
	"gaming":          TopicGaming,
	"music":           TopicMusic,
	"worldnews":       TopicWorld,
	"news":            TopicWorld,
	"sports":          TopicSports,
	"art":             TopicArt,
	"design":          TopicDesign,
	"food":            TopicFood,
	"travel":          TopicTravel,
	"anime":           TopicAnime,
	"fitness":         TopicHealth,
	"personalfinance": TopicFinance,
}

// topicCommunities задаёт сообщества для выборки по теме; первые элементы приоритетнее.
var topicCommunities = map[Topic][]string{
	TopicTechnology:    {"technology", "tech", "gadgets"},
	TopicScience:       {"science", "space", "physics"},
	TopicBusiness:      {"business", "entrepreneur", "startups"},
	TopicFinance:       {"personalfinance", "investing", "stocks"},
	TopicPolitics:      {"politics", "worldpolitics"},
	TopicWorld:         {"worldnews", "news"},
	TopicHealth:        {"health", "fitness", "nutrition"},
	TopicEntertainment: {"entertainment", "celebrities"},
	TopicMovies:        {"movies", "film", "cinema"},
	TopicTVShows:       {"television", "tvshows"},
	TopicMusic:         {"music", "listentothis"},
	TopicGaming:        {"gaming", "games", "pcgaming"},
	TopicAnime:         {"anime", "manga"},
	TopicSports:        {"sports", "nba", "soccer"},
	TopicFood:          {"food", "cooking", "recipes"},
	TopicTravel:        {"travel", "backpacking"},
	TopicFashion:       {"fashion", "streetwear"},
	TopicArt:           {"art", "digitalart", "illustration"},
	TopicProgramming:   {"programming", "webdev", "javascript", "reactjs"},
	TopicDesign:        {"design", "web_design", "UI_Design"},
	TopicEducation:     {"education", "learnprogramming"},
	TopicDiscussion:    {"askreddit", "todayilearned"},
}

// DefaultCommunities используются, если ни одна тема не дала сообществ.
var DefaultCommunities = []string{"technology", "programming", "movies"}

const (
	// MediaTypeMovie — фильм в медиакаталоге.
	MediaTypeMovie = "movie"
	// MediaTypeTV — сериал в медиакаталоге.
	MediaTypeTV = "tv"
	// MediaTypeAll — смешанная выдача трендов.
	MediaTypeAll = "all"
)

var movieTopics = []Topic{TopicMovies, TopicEntertainment, TopicScience}
var tvTopics = []Topic{TopicTVShows, TopicEntertainment, TopicAnime}

// MapProviderCategory переводит нативную категорию провайдера в тему.
// Функция тотальна: неизвестные значения получают запасную тему провайдера.
func MapProviderCategory(provider Provider, native string) Topic {
	switch provider {
	case ProviderNews:
		return MapNewsCategory(native)
	case ProviderMedia:
		id, err := strconv.Atoi(strings.TrimSpace(native))
		if err != nil {
			return TopicMovies
		}
		if t, ok := MapGenre(id); ok {
			return t
		}
		return TopicMovies
	case ProviderSocial:
		return MapCommunity(native)
	default:
		return TopicDiscussion
	}
}

// MapNewsCategory переводит рубрику новостей в тему, запасная — world.
func MapNewsCategory(category string) Topic {
	if t, ok := newsCategoryTopics[strings.ToLower(strings.TrimSpace(category))]; ok {
		return t
	}
	return TopicWorld
}

// MapGenre возвращает тему для жанра каталога.
func MapGenre(genreID int) (Topic, bool) {
	t, ok := genreTopics[genreID]
	return t, ok
}

// GenreName возвращает отображаемое имя жанра.
func GenreName(genreID int) string {
	if name, ok := genreNames[genreID]; ok {
		return name
	}
	return "Unknown"
}

// TopicsForGenres собирает темы по жанрам в порядке первого появления.
// Пустой результат заменяется на movies.
func TopicsForGenres(genreIDs []int) []Topic {
	out := make([]Topic, 0, len(genreIDs))
	for _, id := range genreIDs {
		t, ok := MapGenre(id)
		if !ok || ContainsTopic(out, t) {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		out = append(out, TopicMovies)
	}
	return out
}

// MapCommunity переводит сообщество соцсети в тему. Сначала явная таблица,
// затем обратная таблица выборки, иначе discussion.
func MapCommunity(community string) Topic {
	key := strings.ToLower(strings.TrimSpace(community))
	if t, ok := communityTopics[key]; ok {
		return t
	}
	for _, t := range AllTopics {
		for _, c := range topicCommunities[t] {
			if strings.ToLower(c) == key {
				return t
			}
		}
	}
	return TopicDiscussion
}

// SubjectsForTopic возвращает нативные идентификаторы провайдера, которые
// нужно запросить для темы. Пустой результат означает, что провайдер тему не покрывает.
func SubjectsForTopic(provider Provider, topic Topic) []string {
	switch provider {
	case ProviderNews:
		var out []string
		for _, category := range NewsCategories {
			if newsCategoryTopics[category] == topic {
				out = append(out, category)
			}
		}
		return out
	case ProviderMedia:
		var out []string
		if ContainsTopic(movieTopics, topic) {
			out = append(out, MediaTypeMovie)
		}
		if ContainsTopic(tvTopics, topic) {
			out = append(out, MediaTypeTV)
		}
		return out
	case ProviderSocial:
		communities := topicCommunities[topic]
		out := make([]string, len(communities))
		copy(out, communities)
		return out
	default:
		return nil
	}
}
