package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardSimilarity_IdenticalStringsScoreOne(t *testing.T) {
	score := jaccardSimilarity("单片机键盘 4X4", "单片机键盘 4X4")
	assert.InDelta(t, 1.0, score, 0.001)
}

func TestJaccardSimilarity_PenalizesLengthMismatch(t *testing.T) {
	short := jaccardSimilarity("键盘", "键盘模块扩展套件超长版本名称")
	long := jaccardSimilarity("键盘模块扩展套件", "键盘模块扩展套件超长版本名称")
	assert.Less(t, short, long)
}

func TestJaccardSimilarity_UnrelatedStringsScoreLow(t *testing.T) {
	score := jaccardSimilarity("单片机键盘", "螺丝刀套装")
	assert.Less(t, score, 0.3)
}

func TestJaccardSimilarity_EmptyInputScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, jaccardSimilarity("", "abc"))
	assert.Equal(t, 0.0, jaccardSimilarity("abc", ""))
}
