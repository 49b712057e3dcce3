package concierge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/guest-assistant/internal/llm"
	"github.com/comigor/guest-assistant/internal/logger"
)

// Passage is one paragraph of a guest guide.
type Passage struct {
	Source string
	Text   string
}

// Guides is the searchable text of the hotel's guest guides. Once Embed
// succeeded, Search ranks passages by embedding similarity; until then, or
// when embedding the query fails, it falls back to keyword overlap.
type Guides struct {
	passages []Passage

	embedder llm.Client
	model    openai.EmbeddingModel
	vectors  [][]float32
}

const embedBatch = 256

func NewGuides(passages ...Passage) *Guides {
	return &Guides{passages: passages}
}

// LoadGuides reads every .md and .txt file in dir and splits them into
// paragraphs. A missing directory yields no guides. PDF guides are skipped
// with a warning.
func LoadGuides(dir string) (*Guides, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.L.Warn("guest guides folder not found", "dir", dir)
		return NewGuides(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("concierge: read guides %s: %w", dir, err)
	}

	g := NewGuides()
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".pdf" {
			logger.L.Warn("skipping PDF guide; convert it to .md or .txt", "file", e.Name())
		}
		if e.IsDir() || (ext != ".md" && ext != ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.L.Error("error loading guide", "file", e.Name(), "error", err)
			continue
		}
		for _, para := range strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				g.passages = append(g.passages, Passage{Source: e.Name(), Text: para})
			}
		}
		logger.L.Info("loaded guide", "file", e.Name())
	}
	return g, nil
}

// Len returns the number of passages.
func (g *Guides) Len() int { return len(g.passages) }

func terms(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// Embed indexes every passage with model. It is called once after loading.
func (g *Guides) Embed(ctx context.Context, client llm.Client, model string) error {
	if client == nil || model == "" || len(g.passages) == 0 {
		return nil
	}
	m := openai.EmbeddingModel(model)
	vectors := make([][]float32, 0, len(g.passages))
	for start := 0; start < len(g.passages); start += embedBatch {
		end := min(start+embedBatch, len(g.passages))
		texts := make([]string, 0, end-start)
		for _, p := range g.passages[start:end] {
			texts = append(texts, p.Text)
		}
		batch, err := embed(ctx, client, m, texts)
		if err != nil {
			return fmt.Errorf("concierge: embed guides: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	g.embedder, g.model, g.vectors = client, m, vectors
	logger.L.Info("guest guides embedded", "passages", len(vectors), "model", model)
	return nil
}

func embed(ctx context.Context, client llm.Client, model openai.EmbeddingModel, texts []string) ([][]float32, error) {
	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{Input: texts, Model: model})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Search returns up to k passages relevant to query.
func (g *Guides) Search(ctx context.Context, query string, k int) []Passage {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil
	}
	if g.vectors != nil {
		hits, err := g.similar(ctx, query, k)
		if err == nil {
			return hits
		}
		logger.L.Warn("semantic guide search failed; using keyword search", "error", err)
	}
	return g.keyword(query, k)
}

func (g *Guides) similar(ctx context.Context, query string, k int) ([]Passage, error) {
	qv, err := embed(ctx, g.embedder, g.model, []string{query})
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(g.passages))
	scores := make([]float64, len(g.passages))
	for i := range g.passages {
		idx[i] = i
		scores[i] = cosine(qv[0], g.vectors[i])
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	out := make([]Passage, 0, min(k, len(idx)))
	for _, i := range idx[:min(k, len(idx))] {
		out = append(out, g.passages[i])
	}
	return out, nil
}

func (g *Guides) keyword(query string, k int) []Passage {
	q := terms(query)
	if len(q) == 0 {
		return nil
	}
	type scored struct {
		p     Passage
		score int
	}
	var hits []scored
	for _, p := range g.passages {
		words := terms(p.Text)
		score := 0
		for _, t := range q {
			if slices.Contains(words, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{p: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]Passage, 0, min(k, len(hits)))
	for _, h := range hits[:min(k, len(hits))] {
		out = append(out, h.p)
	}
	return out
}
