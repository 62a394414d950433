package enrich

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/uhafan/stream-dashboard-go/internal/service/youtube"
)

// EngagementScore rates viewer participation on a 0..10 scale. Like and
// comment rates are weighted 60/40, with a bonus for longer streams capped
// at three hours.
func EngagementScore(viewCount, likeCount, commentCount int64, durationMinutes int) float64 {
	if viewCount == 0 {
		return 0.0
	}

	likeRate := float64(likeCount) / float64(viewCount) * 100
	commentRate := float64(commentCount) / float64(viewCount) * 100

	durationFactor := math.Min(float64(durationMinutes)/60, 3)

	score := (likeRate*0.6 + commentRate*0.4) * (1 + durationFactor*0.1)

	return math.Round(math.Min(score, 10.0)*100) / 100
}

// categoryBuckets maps a display category to its trigger words. Order
// matters: the first bucket with a hit wins.
var categoryBuckets = []struct {
	label    string
	keywords []string
}{
	{"🎮 게임", []string{"게임", "game", "플레이", "play", "rpg", "fps", "moba"}},
	{"🎵 음악", []string{"음악", "music", "노래", "song", "sing", "cover"}},
	{"🗣️ 토크", []string{"토크", "talk", "채팅", "chat", "소통", "qa", "질문"}},
	{"🎨 창작", []string{"그림", "draw", "art", "창작", "만들기", "diy"}},
	{"📚 교육", []string{"강의", "교육", "tutorial", "배우기", "learn", "study"}},
	{"🍳 요리", []string{"요리", "cook", "먹방", "food", "recipe"}},
	{"🏃 운동", []string{"운동", "workout", "fitness", "헬스", "스포츠"}},
	{"🎬 리뷰", []string{"리뷰", "review", "후기", "평가", "반응"}},
}

const defaultCategory = "📺 일반"

// Categorize assigns a display category from the title, tags, and keywords.
func Categorize(title string, tags, keywords []string) string {
	allText := strings.ToLower(
		title + " " + strings.Join(tags, " ") + " " + strings.Join(keywords, " "))

	for _, bucket := range categoryBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(allText, kw) {
				return bucket.label
			}
		}
	}
	return defaultCategory
}

var highlightKeywords = []string{
	"대박", "최고", "웃겨", "재밌", "감동", "놀라", "신기", "멋지", "완벽", "훌륭",
	"funny", "amazing", "great", "awesome", "perfect", "incredible", "wow",
}

// ExtractHighlights picks up to three enthusiastic comments, trimmed to 50
// characters. Falls back to title-derived emoji badges when none match.
func ExtractHighlights(comments []string, title string) []string {
	var highlights []string

	limit := len(comments)
	if limit > 20 {
		limit = 20
	}
	for _, comment := range comments[:limit] {
		lower := strings.ToLower(comment)
		matched := false
		for _, kw := range highlightKeywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		clean := strings.TrimSpace(comment)
		if runes := []rune(clean); len(runes) > 50 {
			clean = string(runes[:50])
		}
		if clean == "" || contains(highlights, clean) {
			continue
		}
		highlights = append(highlights, clean)
		if len(highlights) >= 3 {
			break
		}
	}

	if len(highlights) == 0 {
		lowerTitle := strings.ToLower(title)
		if strings.Contains(title, "게임") || strings.Contains(lowerTitle, "game") {
			highlights = append(highlights, "🎮 게임 스트리밍")
		}
		if strings.Contains(title, "채팅") || strings.Contains(lowerTitle, "chat") {
			highlights = append(highlights, "💬 시청자와 소통")
		}
		if len(highlights) == 0 {
			highlights = append(highlights, "📺 라이브 방송")
		}
	}

	return highlights
}

var wordRe = regexp.MustCompile(`[가-힣a-zA-Z0-9]{2,}`)

var stopWords = map[string]struct{}{
	"그래서": {}, "그런데": {}, "하지만": {}, "그리고": {}, "그러나": {},
	"그냥": {}, "정말": {}, "진짜": {}, "완전": {},
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

// ExtractKeywords returns the most frequent non-stopword terms in the text,
// most frequent first. Ties break alphabetically so output is stable.
func ExtractKeywords(text string, maxKeywords int) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)

	counts := make(map[string]int)
	for _, word := range words {
		if _, stop := stopWords[word]; stop {
			continue
		}
		counts[word]++
	}

	type wordCount struct {
		word  string
		count int
	}
	ranked := make([]wordCount, 0, len(counts))
	for word, count := range counts {
		ranked = append(ranked, wordCount{word, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}
	keywords := make([]string, len(ranked))
	for i, wc := range ranked {
		keywords[i] = wc.word
	}
	return keywords
}

// DurationMinutes converts an ISO-8601 duration to whole minutes.
func DurationMinutes(iso string) int {
	d, ok := youtube.ParseDuration(iso)
	if !ok {
		return 0
	}
	return int(d.Minutes())
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
