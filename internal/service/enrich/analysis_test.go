package enrich

import (
	"reflect"
	"strings"
	"testing"
)

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name         string
		views        int64
		likes        int64
		comments     int64
		durationMins int
		want         float64
	}{
		{"zero views", 0, 100, 50, 60, 0.0},
		// like_rate 8%, comment_rate 2.2667%: (8*0.6 + 2.2667*0.4) * (1 + 2*0.1)
		{"typical stream", 15000, 1200, 340, 120, 6.85},
		{"capped at ten", 1000, 900, 800, 180, 10.0},
		{"duration bonus capped at three hours", 100000, 100, 100, 600, 0.13},
		{"no engagement", 5000, 0, 0, 60, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EngagementScore(tt.views, tt.likes, tt.comments, tt.durationMins)
			if got != tt.want {
				t.Errorf("EngagementScore(%d, %d, %d, %d) = %v, want %v",
					tt.views, tt.likes, tt.comments, tt.durationMins, got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		tags     []string
		keywords []string
		want     string
	}{
		{"game in title", "오늘은 신작 게임 플레이", nil, nil, "🎮 게임"},
		{"music in tags", "저녁 방송", []string{"music", "cover"}, nil, "🎵 음악"},
		{"talk in keywords", "편한 방송", nil, []string{"소통"}, "🗣️ 토크"},
		{"cooking", "야식 먹방", nil, nil, "🍳 요리"},
		{"review", "신작 리뷰합니다", nil, nil, "🎬 리뷰"},
		{"game wins over review when first", "게임 리뷰", nil, nil, "🎮 게임"},
		{"nothing matches", "아무 주제 없음", nil, nil, "📺 일반"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.title, tt.tags, tt.keywords); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestExtractHighlights(t *testing.T) {
	comments := []string{
		"그냥 평범한 댓글",
		"오늘 방송 진짜 대박이었어요",
		"this was amazing, never laughed so hard",
		"또 평범한 댓글",
		"최고의 방송 감사합니다",
		"완벽한 마무리 멋지네요",
	}

	highlights := ExtractHighlights(comments, "게임 방송")
	if len(highlights) != 3 {
		t.Fatalf("ExtractHighlights() returned %d highlights, want 3: %v", len(highlights), highlights)
	}
	if highlights[0] != "오늘 방송 진짜 대박이었어요" {
		t.Errorf("highlights[0] = %q", highlights[0])
	}

	for _, h := range highlights {
		if len([]rune(h)) > 50 {
			t.Errorf("highlight %q exceeds 50 characters", h)
		}
	}
}

func TestExtractHighlightsFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		comments []string
		title    string
		want     []string
	}{
		{"game title fallback", nil, "신작 게임 방송", []string{"🎮 게임 스트리밍"}},
		{"chat title fallback", []string{"평범한 댓글"}, "채팅만 하는 날", []string{"💬 시청자와 소통"}},
		{
			"game and chat",
			nil,
			"게임하면서 채팅도",
			[]string{"🎮 게임 스트리밍", "💬 시청자와 소통"},
		},
		{"generic fallback", nil, "그냥 방송", []string{"📺 라이브 방송"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractHighlights(tt.comments, tt.title)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractHighlights() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractHighlightsTruncation(t *testing.T) {
	long := "대박! " + strings.Repeat("정말", 30)

	highlights := ExtractHighlights([]string{long}, "방송")
	if len(highlights) != 1 {
		t.Fatalf("highlights = %v, want one entry", highlights)
	}
	if got := len([]rune(highlights[0])); got != 50 {
		t.Errorf("highlight length = %d runes, want 50", got)
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "게임 게임 게임 방송 방송 토크 the and 정말 진짜 a"

	keywords := ExtractKeywords(text, 10)

	want := []string{"게임", "방송", "토크"}
	if !reflect.DeepEqual(keywords, want) {
		t.Errorf("ExtractKeywords() = %v, want %v", keywords, want)
	}
}

func TestExtractKeywordsLimit(t *testing.T) {
	text := "하나 둘셋 넷다섯 여섯일곱 여덟아홉 열하나 열둘 열셋 열넷 열다섯 열여섯 열일곱"

	keywords := ExtractKeywords(text, 5)
	if len(keywords) != 5 {
		t.Errorf("ExtractKeywords() returned %d keywords, want 5", len(keywords))
	}
}

func TestDurationMinutes(t *testing.T) {
	tests := []struct {
		iso  string
		want int
	}{
		{"PT2H15M", 135},
		{"PT45M", 45},
		{"PT30S", 0},
		{"PT1H", 60},
		{"", 0},
		{"garbage", 0},
	}

	for _, tt := range tests {
		if got := DurationMinutes(tt.iso); got != tt.want {
			t.Errorf("DurationMinutes(%q) = %d, want %d", tt.iso, got, tt.want)
		}
	}
}
