package testutil

import (
	"time"

	"github.com/allofdaniel/shopping-helper/internal/config"
	"github.com/allofdaniel/shopping-helper/internal/model"
)

// E2ETranscript is a one-line recommendation used across pipeline tests.
const E2ETranscript = "다이소에서 파는 스텐 배수구망 2천원인데 진짜 좋아요 강추!"

// E2EResponse is a completion answer for E2ETranscript.
const E2EResponse = `[{"name":"스텐 배수구망","price":"2천원","category":"주방","keywords":["배수구망","스텐"],` +
	`"confidence":0.9,"recommended":true,"quote":"스텐 배수구망 2천원인데 진짜 좋아요"}]`

// DaisoDomain returns the built-in daiso profile.
func DaisoDomain() model.DomainContext {
	return config.DefaultDomains()["daiso"]
}

// DaisoCatalog returns a small daiso catalog whose first entry is the
// stainless drain net sold as a best seller.
func DaisoCatalog() []model.CatalogEntry {
	return []model.CatalogEntry{
		{ID: "1001", Name: "스테인레스 배수구망", Price: 2000, Category: "주방", IsBest: true},
		{ID: "1002", Name: "실리콘 주걱", Price: 1000, Category: "주방", PopularityScore: 1500},
		{ID: "1003", Name: "규조토 발매트", Price: 5000, Category: "욕실", PopularityScore: 12000, IsBest: true},
		{ID: "1004", Name: "투명 수납함 대형", Price: 3000, Category: "수납", PopularityScore: 80},
		{ID: "1005", Name: "극세사 청소포", Price: 1000, Category: "청소", PopularityScore: 15},
	}
}

// Video returns a discovered video with the given transcript (nil for none).
func Video(id string, transcript *string, duration int) model.VideoRecord {
	return model.VideoRecord{
		ID:              id,
		Title:           "다이소 추천템 " + id,
		ChannelName:     "살림채널",
		DurationSeconds: duration,
		Transcript:      transcript,
		CollectedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Status:          model.VideoTranscribed,
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
