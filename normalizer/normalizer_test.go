package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	got, err := Normalize("a  \t b\n\n\n\n\nc", "en")
	require.NoError(t, err)
	assert.Equal(t, "a b\n\nc", got)
}

func TestNormalizeFoldsFullWidthForCJK(t *testing.T) {
	got, err := Normalize("第１条：容量５０ＭＷ（试行）", "zh")
	require.NoError(t, err)
	assert.Equal(t, "第1条:容量50MW(试行)", got)
}

func TestNormalizeLeavesWidthAloneForLatin(t *testing.T) {
	got, err := Normalize("ＡＢＣ", "en")
	require.NoError(t, err)
	assert.Equal(t, "ＡＢＣ", got)
}

func TestNormalizeStripsBoilerplate(t *testing.T) {
	raw := "并网验收所需材料如下。\n第 3 页 共 12 页\nPage 3 of 12\n- 4 -\n----\n一、验收申请表。"
	got, err := Normalize(raw, "zh")
	require.NoError(t, err)
	assert.NotContains(t, got, "页")
	assert.NotContains(t, got, "Page")
	assert.Contains(t, got, "并网验收所需材料如下。")
	assert.Contains(t, got, "一、验收申请表。")
}

func TestNormalizeRejectsInvalidUTF8(t *testing.T) {
	_, err := Normalize(string([]byte{0xff, 0xfe, 0xfd}), "en")
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestExtractEffectiveDateCJK(t *testing.T) {
	d := ExtractEffectiveDate("本办法自2023年7月15日起施行。")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2023, 7, 15, 0, 0, 0, 0, time.UTC), *d)
}

func TestExtractEffectiveDateISO(t *testing.T) {
	d := ExtractEffectiveDate("Effective 2022-01-03 until further notice, revised 2024-05-01.")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), *d)
}

func TestExtractEffectiveDatePrefersEarliestPosition(t *testing.T) {
	d := ExtractEffectiveDate("印发于2021年2月1日，自2021-03-01起施行")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC), *d)
}

func TestExtractEffectiveDateNeverGuesses(t *testing.T) {
	assert.Nil(t, ExtractEffectiveDate("2023年发布的文件"))
	assert.Nil(t, ExtractEffectiveDate("no dates here"))
	assert.Nil(t, ExtractEffectiveDate("invalid 2023-02-30 date"))
}
