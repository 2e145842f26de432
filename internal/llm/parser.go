package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"tadaa_concierge/pkg"
)

// Constants for reply parsing
const (
	MaxReplyLength      = 64 * 1024
	MaxIdentifierLength = 500
	FallbackMessage     = "Sorry, I didn't quite catch that. Could you say it again?"
)

type rawEnvelope struct {
	Message    *string         `json:"message"`
	Extraction json.RawMessage `json:"extraction"`
	Deletion   json.RawMessage `json:"deletion"`
}

type rawExtraction struct {
	Detected      bool           `json:"detected"`
	ItemType      *string        `json:"item_type"`
	ExtractedData map[string]any `json:"extracted_data"`
	MissingFields []string       `json:"missing_fields"`
	Status        string         `json:"status"`
	Confidence    float64        `json:"confidence"`
}

type rawDeletion struct {
	Detected       bool    `json:"detected"`
	ItemType       *string `json:"item_type"`
	ItemIdentifier string  `json:"item_identifier"`
	Status         string  `json:"status"`
	Confidence     float64 `json:"confidence"`
}

// ParseReply turns raw model output into a ReplyEnvelope. It never fails to
// produce an envelope: when the reply or one of its parts cannot be used the
// affected part is dropped and the returned error (wrapping
// pkg.ErrMalformedModelReply) says why.
func ParseReply(raw string) (pkg.ReplyEnvelope, error) {
	text := strings.TrimSpace(raw)
	fallback := text
	if fallback == "" {
		fallback = FallbackMessage
	}
	envelope := pkg.ReplyEnvelope{Message: fallback, Variant: pkg.VariantNone}

	if len(text) > MaxReplyLength {
		return envelope, fmt.Errorf("%w: reply too long: %d bytes (max: %d)", pkg.ErrMalformedModelReply, len(text), MaxReplyLength)
	}
	if !utf8.ValidString(text) {
		return envelope, fmt.Errorf("%w: reply contains invalid UTF-8", pkg.ErrMalformedModelReply)
	}

	body := stripCodeFence(text)
	if !strings.HasPrefix(body, "{") {
		return envelope, fmt.Errorf("%w: reply is not a JSON object", pkg.ErrMalformedModelReply)
	}

	var parsed rawEnvelope
	if err := sonic.UnmarshalString(body, &parsed); err != nil {
		return envelope, fmt.Errorf("%w: %v", pkg.ErrMalformedModelReply, err)
	}

	if parsed.Message != nil && strings.TrimSpace(*parsed.Message) != "" {
		envelope.Message = *parsed.Message
	}

	var problems []string

	extraction, err := parseExtraction(parsed.Extraction)
	if err != nil {
		problems = append(problems, err.Error())
	}
	deletion, err := parseDeletion(parsed.Deletion)
	if err != nil {
		problems = append(problems, err.Error())
	}

	switch {
	case deletion != nil:
		envelope.Variant = pkg.VariantDeletion
		envelope.Deletion = deletion
		if extraction != nil {
			problems = append(problems, "extraction ignored: reply also carries a deletion")
		}
	case extraction != nil:
		envelope.Variant = pkg.VariantExtraction
		envelope.Extraction = extraction
	}

	if len(problems) > 0 {
		return envelope, fmt.Errorf("%w: %s", pkg.ErrMalformedModelReply, strings.Join(problems, "; "))
	}
	return envelope, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func isAbsent(part json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(part))
	return trimmed == "" || trimmed == "null"
}

func parseExtraction(part json.RawMessage) (*pkg.ExtractionReport, error) {
	if isAbsent(part) {
		return nil, nil
	}

	var raw rawExtraction
	if err := sonic.Unmarshal(part, &raw); err != nil {
		return nil, fmt.Errorf("invalid extraction: %v", err)
	}
	if !raw.Detected {
		return nil, nil
	}

	kind, err := parseKind(raw.ItemType, "extraction")
	if err != nil || kind == pkg.KindNone {
		return nil, err
	}

	status, ok := parseExtractionStatus(raw.Status)
	if !ok {
		return nil, fmt.Errorf("invalid extraction status: %q", raw.Status)
	}

	data := raw.ExtractedData
	if data == nil {
		data = map[string]any{}
	}
	missing := raw.MissingFields
	if missing == nil {
		missing = []string{}
	}

	return &pkg.ExtractionReport{
		Detected:      true,
		ItemType:      kind,
		ExtractedData: data,
		MissingFields: missing,
		Status:        status,
		Confidence:    clampConfidence(raw.Confidence),
	}, nil
}

func parseDeletion(part json.RawMessage) (*pkg.DeletionReport, error) {
	if isAbsent(part) {
		return nil, nil
	}

	var raw rawDeletion
	if err := sonic.Unmarshal(part, &raw); err != nil {
		return nil, fmt.Errorf("invalid deletion: %v", err)
	}
	if !raw.Detected {
		return nil, nil
	}

	kind, err := parseKind(raw.ItemType, "deletion")
	if err != nil {
		return nil, err
	}
	if kind == pkg.KindNone {
		return nil, fmt.Errorf("deletion without item_type")
	}

	status, ok := parseDeletionStatus(raw.Status)
	if !ok {
		return nil, fmt.Errorf("invalid deletion status: %q", raw.Status)
	}

	identifier := strings.TrimSpace(raw.ItemIdentifier)
	if len(identifier) > MaxIdentifierLength {
		return nil, fmt.Errorf("item_identifier too long: %d characters (max: %d)", len(identifier), MaxIdentifierLength)
	}

	return &pkg.DeletionReport{
		Detected:       true,
		ItemType:       kind,
		ItemIdentifier: identifier,
		Status:         status,
		Confidence:     clampConfidence(raw.Confidence),
	}, nil
}

func parseKind(s *string, part string) (pkg.ItemKind, error) {
	if s == nil {
		return pkg.KindNone, nil
	}
	kind, ok := pkg.ParseItemKind(*s)
	if !ok {
		return pkg.KindNone, fmt.Errorf("%s has %w: %q", part, pkg.ErrUnknownKind, *s)
	}
	return kind, nil
}

// parseExtractionStatus accepts the statuses a model may report; "saved" is
// only ever set by a commit.
func parseExtractionStatus(s string) (pkg.ExtractionStatus, bool) {
	switch status := pkg.ExtractionStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case "":
		return pkg.StatusExtracting, true
	case pkg.StatusExtracting, pkg.StatusIncomplete, pkg.StatusComplete:
		return status, true
	default:
		return "", false
	}
}

func parseDeletionStatus(s string) (pkg.DeletionStatus, bool) {
	switch status := pkg.DeletionStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case "":
		return pkg.DeletionClarifying, true
	case pkg.DeletionClarifying, pkg.DeletionConfirming, pkg.DeletionConfirmed:
		return status, true
	default:
		return "", false
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
