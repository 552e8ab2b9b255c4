// Package toolparse превращает ответ модели (свободный текст с сегментами <tool_code>
// и/или список структурированных вызовов) в очищенный текст и типизированные действия.
package toolparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"mestrai-server/shared/models"
)

var (
	toolCodePattern = regexp.MustCompile(`(?s)<tool_code>(.*?)</tool_code>`)
	fencePattern    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

	// fingerprintNamespace - пространство имен UUIDv5 для отпечатков действий.
	fingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mestrai:tool-action"))
)

// reservedKeys не переносятся с верхнего уровня сегмента в аргументы.
var reservedKeys = map[string]bool{"action": true, "name": true, "params": true, "args": true, "parameters": true}

// Source - откуда пришло действие.
type Source string

const (
	SourceSegment Source = "tool_code"
	SourceCall    Source = "tool_call"
)

// Drop - отброшенный фрагмент и причина; пользователю не показывается.
type Drop struct {
	Source Source
	Kind   string
	Reason string
	Raw    string
}

// Result - итог разбора одного ответа модели.
type Result struct {
	Narrative string
	Actions   []models.ToolAction
	Dropped   []Drop
}

// HasKind сообщает, есть ли среди действий действие заданного вида.
func (r Result) HasKind(kind models.ToolKind) bool {
	for _, a := range r.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// Parse разбирает текст и структурированные вызовы.
// Сегменты <tool_code> вырезаются из текста всегда, даже если их не удалось разобрать.
// Действия из сегментов идут раньше структурированных вызовов; дубликаты по
// correlation id отбрасываются, иллюстрации также по отпечатку промпта.
func Parse(text string, calls []models.RawToolCall) Result {
	var res Result
	seenIDs := map[string]bool{}
	seenPrints := map[string]bool{}

	accept := func(action models.ToolAction, source Source, raw string) {
		image := action.Kind == models.ToolGenerateImage
		if seenIDs[action.CorrelationID] || (image && seenPrints[action.Fingerprint]) {
			res.Dropped = append(res.Dropped, Drop{Source: source, Kind: string(action.Kind), Reason: "duplicate", Raw: raw})
			return
		}
		seenIDs[action.CorrelationID] = true
		if image {
			seenPrints[action.Fingerprint] = true
		}
		res.Actions = append(res.Actions, action)
	}

	cleaned := toolCodePattern.ReplaceAllStringFunc(text, func(match string) string {
		inner := toolCodePattern.FindStringSubmatch(match)[1]
		action, kind, err := parseSegment(inner)
		if err != nil {
			if strings.TrimSpace(inner) != "" {
				res.Dropped = append(res.Dropped, Drop{Source: SourceSegment, Kind: kind, Reason: err.Error(), Raw: inner})
			}
			return ""
		}
		accept(action, SourceSegment, inner)
		return ""
	})
	res.Narrative = strings.TrimSpace(cleaned)

	for _, call := range calls {
		action, err := parseCall(call)
		if err != nil {
			res.Dropped = append(res.Dropped, Drop{Source: SourceCall, Kind: call.Name, Reason: err.Error(), Raw: call.Arguments})
			continue
		}
		accept(action, SourceCall, call.Arguments)
	}
	return res
}

func parseSegment(inner string) (models.ToolAction, string, error) {
	raw := strings.TrimSpace(inner)
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if raw == "" {
		return models.ToolAction{}, "", errors.New("empty segment")
	}

	var block map[string]any
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		return models.ToolAction{}, "", fmt.Errorf("%w: %v", models.ErrParse, err)
	}

	kind, _ := block["action"].(string)
	if kind == "" {
		kind, _ = block["name"].(string)
	}
	if kind == "" {
		return models.ToolAction{}, "", fmt.Errorf("%w: segment has no action", models.ErrParse)
	}

	action, err := build(kind, "", foldArgs(block))
	return action, kind, err
}

// foldArgs собирает каноничную карту аргументов: вложенная карта параметров плюс
// поля верхнего уровня, которых в ней нет (например, голые "type" или "prompt").
func foldArgs(block map[string]any) map[string]any {
	args := map[string]any{}
	for _, key := range []string{"params", "args", "parameters"} {
		if nested, ok := block[key].(map[string]any); ok {
			for k, v := range nested {
				args[k] = v
			}
			break
		}
	}
	for k, v := range block {
		if reservedKeys[k] {
			continue
		}
		if _, exists := args[k]; !exists {
			args[k] = v
		}
	}
	return args
}

func parseCall(call models.RawToolCall) (models.ToolAction, error) {
	args := map[string]any{}
	if s := strings.TrimSpace(call.Arguments); s != "" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return models.ToolAction{}, fmt.Errorf("%w: arguments: %v", models.ErrParse, err)
		}
	}
	return build(call.Name, call.ID, args)
}

func build(kind, callID string, args map[string]any) (models.ToolAction, error) {
	typed, err := decodeArgs(models.ToolKind(kind), args)
	if err != nil {
		return models.ToolAction{}, err
	}
	fp := fingerprint(typed)
	id := strings.TrimSpace(callID)
	if id == "" {
		id = fmt.Sprintf("tool_code_%s_%s", kind, fp[:8])
	}
	return models.ToolAction{
		Kind:          typed.ToolKind(),
		CorrelationID: id,
		Fingerprint:   fp,
		Args:          typed,
	}, nil
}

// ImageFingerprint - отпечаток запроса иллюстрации, зависящий только от промпта.
func ImageFingerprint(prompt string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(prompt), " "))
	return uuid.NewSHA1(fingerprintNamespace, []byte(string(models.ToolGenerateImage)+"\x00"+normalized)).String()
}

func fingerprint(args models.ToolArgs) string {
	if img, ok := args.(models.ImageArgs); ok {
		return ImageFingerprint(img.Prompt)
	}
	canonical, _ := json.Marshal(args)
	return uuid.NewSHA1(fingerprintNamespace, append([]byte(string(args.ToolKind())+"\x00"), canonical...)).String()
}
