package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// stripCodeFence 去掉首尾的 markdown 代码块标记，多次调用结果不变
func stripCodeFence(text string) string {
	s := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if m := fencedJSONRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject 去掉代码块标记后，截取第一个 { 到最后一个 } 之间的内容
func extractJSONObject(text string) string {
	s := stripCodeFence(text)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

// firstBalancedObject 按括号层级截取第一个完整的 JSON 对象，忽略字符串内的括号
func firstBalancedObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inStr:
			escaped = true
		case c == '"':
			inStr = !inStr
		case c == '{' && !inStr:
			level++
		case c == '}' && !inStr:
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// decodeLLMJSON 依次尝试：原始截取、修复未转义引号、按括号层级截取
func decodeLLMJSON(response string, v any) error {
	candidate := extractJSONObject(response)
	if candidate == "" {
		return errNoJSONObject
	}
	err := json.Unmarshal([]byte(candidate), v)
	if err == nil {
		return nil
	}
	if json.Unmarshal([]byte(sanitizeJSON(candidate)), v) == nil {
		return nil
	}
	if balanced := firstBalancedObject(candidate); balanced != "" && balanced != candidate {
		if json.Unmarshal([]byte(balanced), v) == nil {
			return nil
		}
	}
	return err
}

// sanitizeJSON 将字符串字面量内部未转义的双引号改写为 \"。
// 通过检查下一个非空白字符是否为 : , ] } 来判断引号是否为字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
				break
			}
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j >= len(src) || src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}' {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			escaped = false
		}
	}
	return b.String()
}
