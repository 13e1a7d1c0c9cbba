package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

func daiso() model.DomainContext {
	return model.DomainContext{
		Name:        "daiso",
		DisplayName: "다이소",
		Keywords:    []string{"다이소", "꿀템", "추천템"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		valid  bool
		reason string
	}{
		{
			name:  "short recommendation",
			text:  "다이소에서 파는 스텐 배수구망 2천원인데 진짜 좋아요 강추!",
			valid: true,
		},
		{
			name:   "empty",
			text:   "   \n  ",
			reason: ReasonEmpty,
		},
		{
			name:   "too short",
			text:   "다이소 꿀템",
			reason: ReasonTooShort,
		},
		{
			name:   "off topic",
			text:   "오늘은 집에서 간단하게 김치볶음밥을 만들어 보겠습니다 맛있어요",
			reason: ReasonNoDomainKeyword,
		},
		{
			name:   "mostly noise",
			text:   "[음악]\n[음악]\n\n다이소 배수구망 정말 좋아요 강력 추천합니다\n구독과 좋아요 부탁드려요\n00:15",
			reason: ReasonMostlyNoise,
		},
		{
			name:  "some noise is tolerated",
			text:  "[음악]\n다이소 배수구망 정말 좋아요 강력 추천합니다\n실리콘 주걱도 2천원이에요\n",
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.text, daiso())
			assert.Equal(t, tt.valid, res.IsValid)
			assert.Equal(t, tt.reason, res.RejectionReason)
			assert.GreaterOrEqual(t, res.QualityScore, 0.0)
			assert.LessOrEqual(t, res.QualityScore, 1.0)
		})
	}
}

func TestValidate_DecomposedHangul(t *testing.T) {
	text := norm.NFD.String("다이소에서 파는 스텐 배수구망 2천원인데 진짜 좋아요 강추!")
	assert.True(t, Validate(text, daiso()).IsValid)
}

func TestValidate_NoTermsSkipsKeywordCheck(t *testing.T) {
	res := Validate("오늘은 집에서 간단하게 김치볶음밥을 만들어 보겠습니다", model.DomainContext{})
	assert.True(t, res.IsValid)
}

func TestValidate_QualityGrowsWithSignal(t *testing.T) {
	short := Validate("다이소에서 파는 스텐 배수구망 2천원인데 진짜 좋아요 강추!", daiso())
	long := Validate(strings.Repeat("다이소 꿀템 배수구망 정말 추천합니다\n", 20), daiso())
	assert.Greater(t, long.QualityScore, short.QualityScore)
}

func TestSanitize(t *testing.T) {
	in := "<p>다이소 <b>배수구망</b> &amp; 수세미</p>\r\n<script>alert(1)</script>"
	out := Sanitize(in)
	assert.Equal(t, "다이소 배수구망 & 수세미", out)
}
