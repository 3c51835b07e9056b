package catalog

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/cove-labs/concierge/internal/domain"
)

var returnFields = []string{"kind", "title", "url", "meta", "__content", "__vector_score"}

// SearchDense runs a KNN vector similarity search over documents of the
// given kind via FT.SEARCH. Scores are similarities in [0,1]
// (1 - cosine distance, clamped).
func (s *Store) SearchDense(
	ctx context.Context, kind string, vector []float32, topK int,
) ([]domain.ScoredDoc, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	queryStr := fmt.Sprintf("(%s)=>[KNN %d @__vector $BLOB]", kindFilter(kind), topK)

	args := []string{s.indexName(), queryStr}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)
	args = append(args,
		"LIMIT", "0", strconv.Itoa(topK),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("search dense: %w", err)
	}

	return s.parseDenseResult(raw)
}

// SearchLexical runs a BM25 text search over documents of the given
// kind via FT.SEARCH WITHSCORES. Documents whose lexical index does not
// match the query are simply absent from the result.
func (s *Store) SearchLexical(
	ctx context.Context, kind, query string, topK int,
) ([]domain.ScoredDoc, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	queryStr := fmt.Sprintf("%s @__content:(%s)", kindFilter(kind), escapeQuery(query))

	args := []string{s.indexName(), queryStr}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)
	args = append(args,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("search lexical: %w", err)
	}

	return s.parseLexicalResult(raw)
}

// BySlug fetches the single product document whose slug tag matches.
// Returns domain.ErrNotFound when no document has the slug.
func (s *Store) BySlug(ctx context.Context, slug string) (domain.Document, error) {
	queryStr := fmt.Sprintf("%s @slug:{%s}", kindFilter(domain.KindProduct), tagEscaper.Replace(slug))

	args := []string{s.indexName(), queryStr}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)
	args = append(args, "LIMIT", "0", "1", "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return domain.Document{}, fmt.Errorf("search slug %s: %w", slug, err)
	}

	docs, err := s.parseDenseResult(raw)
	if err != nil {
		return domain.Document{}, err
	}
	if len(docs) == 0 {
		return domain.Document{}, fmt.Errorf("slug %s: %w", slug, domain.ErrNotFound)
	}
	return docs[0].Doc, nil
}

// TagValues returns the distinct values of a TAG field via FT.TAGVALS.
// Used by the vocabulary refresh for the colors and type fields.
func (s *Store) TagValues(ctx context.Context, field string) ([]string, error) {
	cmd := s.b().Arbitrary("FT.TAGVALS").Args(s.indexName(), field).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("tagvals %s: %w", field, err)
	}

	values := make([]string, 0, len(raw))
	for _, msg := range raw {
		v, err := msg.ToString()
		if err != nil || v == "" {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

// --- Result parsing ---

func (s *Store) parseDenseResult(raw []rueidis.RedisMessage) ([]domain.ScoredDoc, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	docs := make([]domain.ScoredDoc, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		m := parseFieldPairs(fields)

		var score float64
		if distStr, ok := m["__vector_score"]; ok {
			if d, err := strconv.ParseFloat(distStr, 64); err == nil {
				score = max(0, 1.0-d) // cosine distance → similarity, clamped to [0,1]
			}
		}

		docs = append(docs, domain.ScoredDoc{
			Doc:   s.docFromFields(key, m),
			Score: score,
		})
	}

	return docs, nil
}

func (s *Store) parseLexicalResult(raw []rueidis.RedisMessage) ([]domain.ScoredDoc, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	docs := make([]domain.ScoredDoc, 0, total)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		docs = append(docs, domain.ScoredDoc{
			Doc:   s.docFromFields(key, parseFieldPairs(fields)),
			Score: score,
		})
	}

	return docs, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query helpers ---

func kindFilter(kind string) string {
	return fmt.Sprintf("@kind:{%s}", tagEscaper.Replace(kind))
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
