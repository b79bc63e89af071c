// Package util은 전송 계층이 함께 쓰는 메시지 포맷 도우미를 모은다.
package util

import "strings"

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
)

// 카카오톡 '전체보기'용 제로폭 문자를 채워 메시지를 확장.
// 첫 줄에는 instruction이 온다.
func ApplyKakaoSeeMorePadding(text, instruction string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	message := strings.TrimSpace(instruction)

	var builder strings.Builder
	builder.Grow(len(text) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + len(message) + 1)
	builder.WriteString(message)
	builder.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(text, "\n") {
		builder.WriteByte('\n')
	}
	builder.WriteString(text)
	return builder.String()
}

// ListMessage는 header 아래에 lines를 붙인다. seeMore면 전체보기로 접는다.
func ListMessage(header string, lines []string, seeMore bool) string {
	body := strings.Join(lines, "\n")
	if seeMore {
		return ApplyKakaoSeeMorePadding(body, header)
	}
	if body == "" {
		return header
	}
	return header + "\n" + body
}
