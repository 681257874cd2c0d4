package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptFallbackBlocks(t *testing.T) {
	p := BuildPrompt(Input{RowIndex: 3})

	assert.True(t, strings.HasPrefix(p, "\n"+systemRubric))
	assert.Contains(t, p, "\n사용자 추가 기준: 없음\n")
	assert.Contains(t, p, "\n서비스 핵심가치 정의: 없음\n")
	assert.Contains(t, p, "\n어뷰저 판단 기준(사용자 입력): 기본 기준 사용\n")
	assert.Contains(t, p, "\n디스커버리형 판단 기준(사용자 입력): 기본 기준 사용\n")
	assert.Contains(t, p, `"rawEntries": []`)
	assert.Contains(t, p, `"rawData": {}`)
	assert.True(t, strings.HasSuffix(p, "\n\n출력 스키마:\n"+outputSchema))
}

func TestBuildPromptCriteriaVerbatim(t *testing.T) {
	in := Input{
		RowIndex: 7,
		RawData:  map[string]string{"좋았던 점": "<b>추천</b> & 배송"},
		RawEntries: []RawEntry{
			{Header: "좋았던 점", Value: "<b>추천</b> & 배송", ColumnIndex: 0},
		},
		Criteria: Criteria{
			User:      "  재구매 의사가 있으면 가산  ",
			CoreValue: "개인화 추천",
			Abuser:    "   ",
			Discovery: "정보 탐색 목적",
		},
	}
	p := BuildPrompt(in)

	assert.Contains(t, p, "\n사용자 추가 기준:\n재구매 의사가 있으면 가산\n")
	assert.Contains(t, p, "\n서비스 핵심가치 정의:\n개인화 추천\n")
	assert.Contains(t, p, "\n어뷰저 판단 기준(사용자 입력): 기본 기준 사용\n")
	assert.Contains(t, p, "\n디스커버리형 판단 기준(사용자 입력):\n정보 탐색 목적\n")
	assert.Contains(t, p, `"rowIndex": 7`)
	assert.Contains(t, p, `"<b>추천</b> & 배송"`, "markup is not escaped")
	assert.Contains(t, p, `"columnIndex": 0`)

	order := []string{"사용자 추가 기준", "서비스 핵심가치 정의", "어뷰저 판단 기준", "디스커버리형 판단 기준", "입력 데이터(JSON):", "출력 스키마:"}
	last := -1
	for _, marker := range order {
		i := strings.Index(p, marker)
		assert.Greater(t, i, last, marker)
		last = i
	}
}
