package classifier

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PromptVersion is bumped whenever the rubric or output schema changes.
const PromptVersion = "v1.1.0"

const systemRubric = `
당신은 설문 응답을 아래 4개 분류로 판정하는 심사자다.
- PRE_VD: 서비스 가치 공감 + 구매의향/행동이 강하고, 유지되면 아쉽다는 신호가 강함
- VSD: 전반 긍정이나 확신 부족/조건부 신호가 섞임
- NSD: 유용성은 일부 인정하나 신뢰/효용/구매 연결이 약함
- ND: 서비스 필요성 낮음, 불만이 큼, 혹은 도움되지 않음

원칙:
1) 응답 텍스트 근거 중심으로 판정한다.
2) 근거가 약하면 보수적으로 낮은 분류를 선택한다.
3) 출력은 반드시 JSON만 반환한다.
4) 입력 헤더가 다양해도 의미를 파악해 canonical 필드를 채운다.
5) NSD/ND는 핵심가치 공감이 약하거나 없는 경우에 해당한다.
6) coreValueUnderstood는 fitScore, 맞춤형 이유, 좋았던 점/아쉬운 점, 구매의향 관련 주관식을 종합해 판단한다.
7) "purchaseIntent"는 반드시 "이 서비스에서 추천받은 상품에 대한 구매의향"을 의미한다.
8) "purchaseTiming"은 반드시 위 purchaseIntent와 무관한 "해당 카테고리의 원래 구매 계획/시기"를 의미한다.
9) purchaseIntent와 purchaseTiming을 서로 혼합하거나 대체하지 않는다.
10) coreValueUnderstood를 true/false로 반환할 때는 coreValueReason에 근거를 반드시 작성한다.
11) 어뷰저 여부를 판단한다. 어뷰저는 주관식이 지나치게 짧거나 성의 없는 표현만 반복되어 설문 신뢰가 낮은 응답자다.
`

const outputSchema = `{
  "label": "PRE_VD | VSD | NSD | ND",
  "rationale": "최종 분류 판단 근거(핵심 근거 1~3문장)",
  "warningSignals": ["선택적 경고 시그널"],
  "usedColumns": ["판단에 실제 사용한 원본 헤더명"],
  "isAbuser": "boolean | null",
  "abuserReason": "어뷰저로 봤는지/아닌지에 대한 1문장 근거",
  "coreValueUnderstood": "boolean | null",
  "coreValueReason": "핵심가치 이해 여부를 그렇게 판단한 근거 1~2문장",
  "normalized": {
    "pmf": "매우 아쉬움 | 조금 아쉬움 | 별로 아쉽지 않음 | null",
    "slightReason": "string | null",
    "whyThink": "string | null",
    "fitScore": "0~10 number | null",
    "fitReason": "string | null",
    "bestPoint": "string | null",
    "bestPointSummary": "주관식 종합된 가장 좋은 점",
    "purchaseTiming": "해당 카테고리 원래 구매 계획/시기(추천상품 구매의향과 별개) | null",
    "purchaseIntent": "이 서비스에서 추천받은 상품에 대한 구매의향 | null",
    "purchasePlanned": "boolean | null",
    "purchaseIntentCombined": "추천상품 구매의향(객관식) + 추천상품 구매 관련 주관식 종합",
    "buyReason": "string | null",
    "improvement": "string | null",
    "downsideSummary": "주관식 종합된 아쉬운 점",
    "judgementReason": "string | null"
  }
}
`

// SystemRubric returns the fixed judging rubric sent ahead of every row.
func SystemRubric() string { return systemRubric }

type promptData struct {
	RowIndex   int               `json:"rowIndex"`
	Normalized NormalizedRow     `json:"normalized"`
	RawData    map[string]string `json:"rawData"`
	RawEntries []RawEntry        `json:"rawEntries"`
}

// criteriaBlock renders an optional operator block, or its explicit fallback line.
func criteriaBlock(title, value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return "\n" + title + ":\n" + v + "\n"
	}
	return "\n" + title + ": " + fallback + "\n"
}

// BuildPrompt renders the full model instruction for one row. It never fails:
// a row that cannot be serialized is embedded as an empty object.
func BuildPrompt(in Input) string {
	data := promptData{
		RowIndex:   in.RowIndex,
		Normalized: in.Normalized,
		RawData:    in.RawData,
		RawEntries: in.RawEntries,
	}
	if data.RawData == nil {
		data.RawData = map[string]string{}
	}
	if data.RawEntries == nil {
		data.RawEntries = []RawEntry{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	body := "{}"
	if err := enc.Encode(data); err == nil {
		body = strings.TrimRight(buf.String(), "\n")
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(systemRubric)
	b.WriteString("\n")
	b.WriteString(criteriaBlock("사용자 추가 기준", in.Criteria.User, "없음"))
	b.WriteString("\n")
	b.WriteString(criteriaBlock("서비스 핵심가치 정의", in.Criteria.CoreValue, "없음"))
	b.WriteString("\n")
	b.WriteString(criteriaBlock("어뷰저 판단 기준(사용자 입력)", in.Criteria.Abuser, "기본 기준 사용"))
	b.WriteString("\n")
	b.WriteString(criteriaBlock("디스커버리형 판단 기준(사용자 입력)", in.Criteria.Discovery, "기본 기준 사용"))
	b.WriteString("\n입력 데이터(JSON):\n")
	b.WriteString(body)
	b.WriteString("\n\n출력 스키마:\n")
	b.WriteString(outputSchema)
	return b.String()
}
