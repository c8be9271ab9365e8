// Package extract pulls structured entry fields out of prose. A heuristic
// pass builds the base fields; a model pass, when available, overlays them
// conservatively: only keys the schema knows, only values the taxonomy
// accepts. Extraction never invents a field the message does not support.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"loreweave/internal/llm"
	"loreweave/internal/schema"
	"loreweave/internal/store"
)

const summaryLen = 220

// Searcher resolves a mention to existing entries. Only the top hit is
// trusted for slug assignment.
type Searcher interface {
	SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]store.SearchResult, error)
}

type Extractor struct {
	model    llm.Completer
	registry *schema.Registry
	search   Searcher
	log      *zap.Logger
}

func New(model llm.Completer, registry *schema.Registry, search Searcher, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{model: model, registry: registry, search: search, log: log}
}

// Extract returns the fields the message supports for the given entry type.
// It never fails: a model error leaves the heuristic result standing.
func (e *Extractor) Extract(ctx context.Context, message, entryType string) map[string]any {
	sch, err := e.registry.Get(entryType)
	if err != nil {
		e.log.Warn("extraction skipped for unknown type", zap.String("type", entryType))
		return map[string]any{}
	}

	fields := e.heuristic(ctx, message, sch)

	if e.model != nil {
		if overlay, err := e.modelFields(ctx, message, sch); err == nil {
			e.merge(fields, overlay, sch)
		} else {
			e.log.Warn("model extraction failed, keeping heuristic fields", zap.Error(err))
		}
	}

	fields["type"] = entryType
	return fields
}

// properNoun matches a capitalized word run like "Ember Court" or "Bram of
// Highmoor", with an optional leading article.
const properNoun = `((?:[Tt]he\s+)?[A-Z][\w'-]*(?:\s+(?:of|the|[A-Z][\w'-]*))*)`

var (
	doubleQuotedNameRe = regexp.MustCompile(`"([^"]{2,80})"`)
	// The opening quote must not follow a word character, so an apostrophe
	// inside a contraction never starts a match.
	singleQuotedNameRe = regexp.MustCompile(`(?:^|[^\w])'([^']{2,80})'`)
	namedRe            = regexp.MustCompile(`\b(?:[Nn]amed|[Cc]alled)\s+` + properNoun)
	introduceRe        = regexp.MustCompile(`\b(?i:(?:add|create|make)\s+(?:(?:a|an|the)\s+)?(?:new\s+)?(?:location|faction|npc|event|culture))\s+` + properNoun)
	sentenceEnd        = regexp.MustCompile(`[.!?]\s`)
)

func (e *Extractor) heuristic(ctx context.Context, message string, sch *schema.Schema) map[string]any {
	fields := map[string]any{}

	if name := extractName(message); name != "" {
		fields["name"] = name
	}
	if category := firstVocabMatch(message, sch.Categories); category != "" {
		fields["category"] = category
	}
	if status := firstVocabMatch(message, sch.Statuses); status != "" {
		fields["status"] = status
	}

	fields["summary"] = firstSentence(message)
	fields["content"] = strings.TrimSpace(message)

	if metadata := e.slugMetadata(ctx, message, sch); len(metadata) > 0 {
		fields["metadata"] = metadata
	}

	return fields
}

// extractName tries, in order: a quoted phrase (either quote style), a
// named/called clause, and a proper noun after an introduction like
// "add a faction X".
func extractName(message string) string {
	if m := doubleQuotedNameRe.FindStringSubmatch(message); m != nil {
		return NormalizeName(m[1])
	}
	if m := singleQuotedNameRe.FindStringSubmatch(message); m != nil {
		return NormalizeName(m[1])
	}
	if m := namedRe.FindStringSubmatch(message); m != nil {
		return NormalizeName(m[1])
	}
	if m := introduceRe.FindStringSubmatch(message); m != nil {
		return NormalizeName(m[1])
	}
	return ""
}

// NormalizeName strips quoting, drops a trailing relative clause and trims
// stray punctuation, so `"Kara," who runs the docks` becomes `Kara`.
func NormalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.Trim(name, `"'`)

	lower := strings.ToLower(name)
	for _, clause := range []string{" who ", " that ", " which "} {
		if idx := strings.Index(lower, clause); idx >= 0 {
			name = name[:idx]
			lower = lower[:idx]
		}
	}

	return strings.Trim(name, ` .,!?:;"'`)
}

// firstVocabMatch returns the first vocabulary value that appears as a whole
// word in the message.
func firstVocabMatch(message string, vocab []string) string {
	lower := strings.ToLower(message)
	for _, value := range vocab {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(value) + `\b`)
		if re.MatchString(lower) {
			return value
		}
	}
	return ""
}

func firstSentence(message string) string {
	text := strings.TrimSpace(message)
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		text = text[:loc[0]+1]
	}
	if len(text) > summaryLen {
		text = text[:summaryLen]
	}
	return strings.TrimSpace(text)
}

var (
	locationMentionRe = regexp.MustCompile(`\b(?:in|at|from|near)\s+` + properNoun)
	factionMentionRe  = regexp.MustCompile(`\b(?:aligned with|member of|for|with)\s+` + properNoun)
)

// slugMetadata resolves prepositional mentions against existing entries and
// fills the schema's slug-valued metadata keys. A mention only sticks when
// the search's top hit has the expected type.
func (e *Extractor) slugMetadata(ctx context.Context, message string, sch *schema.Schema) map[string]any {
	if e.search == nil {
		return nil
	}

	metadata := map[string]any{}
	if slug := e.resolveMention(ctx, message, locationMentionRe, "location"); slug != "" {
		for key := range sch.Metadata {
			if !strings.HasSuffix(key, "_slug") {
				continue
			}
			if strings.Contains(key, "location") || strings.Contains(key, "base_of_operations") {
				metadata[key] = slug
			}
		}
	}
	if slug := e.resolveMention(ctx, message, factionMentionRe, "faction"); slug != "" {
		for key := range sch.Metadata {
			if strings.Contains(key, "faction") && strings.HasSuffix(key, "_slug") {
				metadata[key] = slug
			}
		}
	}
	return metadata
}

func (e *Extractor) resolveMention(ctx context.Context, message string, re *regexp.Regexp, entryType string) string {
	m := re.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	phrase := strings.TrimSpace(m[1])
	if lower := strings.ToLower(phrase); strings.HasPrefix(lower, "the ") {
		phrase = strings.TrimSpace(phrase[4:])
	}
	if phrase == "" {
		return ""
	}

	hits, err := e.search.SearchFulltext(ctx, phrase, entryType, 1)
	if err != nil {
		e.log.Debug("mention lookup failed", zap.String("phrase", phrase), zap.Error(err))
		return ""
	}
	if len(hits) == 0 {
		return ""
	}
	return hits[0].Slug
}

func (e *Extractor) modelFields(ctx context.Context, message string, sch *schema.Schema) (map[string]any, error) {
	schemaJSON, err := json.Marshal(sch)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	systemPrompt := fmt.Sprintf(`You extract worldbuilding entry fields from a message.
The entry schema is:
%s
Respond with a JSON object containing only fields the message explicitly supports.
Allowed keys: name, category, status, summary, content, parent_slug, metadata, references.
"references" is a list of {"target_slug": string, "target_type": string, "relationship": string}.
Never guess. Omit any field the message does not state.`, schemaJSON)

	raw, err := e.model.Complete(ctx, systemPrompt, message)
	if err != nil {
		return nil, err
	}

	var overlay map[string]any
	if err := llm.DecodeObject(raw, &overlay); err != nil {
		return nil, err
	}
	return overlay, nil
}

// merge applies model output over the heuristic base, accepting only keys the
// schema defines and values the taxonomy allows. Blank strings never
// overwrite a heuristic value.
func (e *Extractor) merge(fields, overlay map[string]any, sch *schema.Schema) {
	for key, value := range overlay {
		switch key {
		case "name", "summary", "content", "parent_slug":
			if s, ok := stringValue(value); ok {
				fields[key] = s
			}
		case "category":
			if s, ok := stringValue(value); ok && sch.HasCategory(s) {
				fields[key] = s
			}
		case "status":
			if s, ok := stringValue(value); ok && sch.HasStatus(s) {
				fields[key] = s
			}
		case "metadata":
			raw, ok := value.(map[string]any)
			if !ok {
				continue
			}
			metadata, _ := fields["metadata"].(map[string]any)
			if metadata == nil {
				metadata = map[string]any{}
			}
			for mk, mv := range raw {
				if _, known := sch.Metadata[mk]; !known {
					continue
				}
				if s, isString := mv.(string); isString && strings.TrimSpace(s) == "" {
					continue
				}
				metadata[mk] = mv
			}
			if len(metadata) > 0 {
				fields["metadata"] = metadata
			}
		case "references":
			if refs := coerceReferences(value); len(refs) > 0 {
				fields["references"] = refs
			}
		}
	}
}

func stringValue(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

func coerceReferences(value any) []store.Reference {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	refs := make([]store.Reference, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		slug, _ := obj["target_slug"].(string)
		if strings.TrimSpace(slug) == "" {
			continue
		}
		targetType, _ := obj["target_type"].(string)
		relationship, _ := obj["relationship"].(string)
		refs = append(refs, store.Reference{
			TargetSlug:   slug,
			TargetType:   targetType,
			Relationship: relationship,
		})
	}
	return refs
}

const followUpCap = 8

// FollowUps asks the model for clarifying questions about missing required
// fields; without a model it builds them from the schema, including a
// connection prompt for every slug-valued metadata key still unfilled.
func (e *Extractor) FollowUps(ctx context.Context, message string, sch *schema.Schema, missing []string, filled map[string]any) []string {
	if e.model != nil && len(missing) > 0 {
		systemPrompt := "You help a worldbuilder complete a lore entry. " +
			"Respond with a JSON object {\"questions\": [string]} asking one short question per missing field."
		userPrompt := fmt.Sprintf("Message: %s\nMissing fields: %s", message, strings.Join(missing, ", "))

		raw, err := e.model.Complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			var parsed struct {
				Questions []string `json:"questions"`
			}
			if err := llm.DecodeObject(raw, &parsed); err == nil && len(parsed.Questions) > 0 {
				return parsed.Questions
			}
		} else {
			e.log.Debug("follow-up generation failed", zap.Error(err))
		}
	}

	return schemaQuestions(sch, missing, filled)
}

// schemaQuestions templates one question per missing field, listing the
// taxonomy options for category and status, then asks about each slug-valued
// metadata key the extraction left empty.
func schemaQuestions(sch *schema.Schema, missing []string, filled map[string]any) []string {
	var questions []string
	for _, field := range missing {
		switch field {
		case "name":
			questions = append(questions, "What is the entry name?")
		case "category":
			questions = append(questions, fmt.Sprintf("Which category fits best (%s)?", strings.Join(sch.Categories, ", ")))
		case "status":
			questions = append(questions, fmt.Sprintf("What is the current status (%s)?", strings.Join(sch.Statuses, ", ")))
		case "content":
			questions = append(questions, "Can you provide fuller details for Summary, Details, and Hooks?")
		}
	}

	metadata, _ := filled["metadata"].(map[string]any)
	for _, key := range sortedSlugKeys(sch) {
		if value, ok := metadata[key]; ok {
			if s, isString := value.(string); !isString || strings.TrimSpace(s) != "" {
				continue
			}
		}
		label := strings.TrimSuffix(strings.ReplaceAll(key, "_", " "), " slug")
		questions = append(questions, fmt.Sprintf("Does this connect to an existing %s? If so, which one?", label))
	}

	deduped := make([]string, 0, len(questions))
	seen := map[string]struct{}{}
	for _, question := range questions {
		if _, dup := seen[question]; dup {
			continue
		}
		seen[question] = struct{}{}
		deduped = append(deduped, question)
		if len(deduped) == followUpCap {
			break
		}
	}
	return deduped
}

func sortedSlugKeys(sch *schema.Schema) []string {
	var keys []string
	for key := range sch.Metadata {
		if strings.HasSuffix(key, "_slug") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
