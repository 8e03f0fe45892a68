package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	text    string
	err     error
	vec     []float32
	lastReq Request
	block   bool
}

func (f *fakeProvider) Generate(ctx context.Context, req Request) (string, error) {
	f.lastReq = req
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestGenerateJSONMode(t *testing.T) {
	g := NewGateway("fake")
	fp := &fakeProvider{text: "```json\n{\"reply\":\"hi\",\"tools\":[{\"name\":\"flow.continue\",\"args\":{\"next_step\":\"x\"}}]}\n```"}
	g.Register("fake", fp)

	reply := g.Generate(context.Background(), "prompt", "", true)
	assert.False(t, reply.Failed)
	assert.Equal(t, "hi", reply.Text)
	require.Len(t, reply.Tools, 1)
	assert.Equal(t, "flow.continue", reply.Tools[0].Name)
	assert.Equal(t, "x", reply.Tools[0].Args["next_step"])
	assert.True(t, fp.lastReq.JSONMode)
}

func TestGenerateTextMode(t *testing.T) {
	g := NewGateway("fake")
	g.Register("fake", &fakeProvider{text: "plain words"})

	reply := g.Generate(context.Background(), "prompt", "fake", false)
	assert.Equal(t, "plain words", reply.Text)
	assert.NotNil(t, reply.Tools)
	assert.Empty(t, reply.Tools)
}

func TestGenerateNeverFails(t *testing.T) {
	g := NewGateway("fake")
	g.Register("fake", &fakeProvider{err: errors.New("boom")})

	reply := g.Generate(context.Background(), "p", "", true)
	assert.True(t, reply.Failed)
	assert.Contains(t, reply.Text, "boom")
	assert.NotNil(t, reply.Tools)

	reply = g.Generate(context.Background(), "p", "nobody", true)
	assert.True(t, reply.Failed)
	assert.Contains(t, reply.Text, "unknown provider")
}

func TestGenerateTimeout(t *testing.T) {
	g := NewGateway("fake", WithTimeout(20*time.Millisecond))
	g.Register("fake", &fakeProvider{block: true})

	reply := g.Generate(context.Background(), "p", "", false)
	assert.True(t, reply.Failed)
}

func TestEmbed(t *testing.T) {
	g := NewGateway("gen", WithEmbedProvider("emb"))
	g.Register("emb", &fakeProvider{vec: []float32{1, 2}})
	g.Register("gen", &fakeProvider{err: ErrEmbedUnsupported})

	assert.Equal(t, []float32{1, 2}, g.Embed(context.Background(), "text", ""))
	assert.Nil(t, g.Embed(context.Background(), "text", "gen"))
	assert.Nil(t, g.Embed(context.Background(), "   ", ""))

	vec, err := g.Embedder("").Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 2)

	_, err = g.Embedder("gen").Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestReplyDecode(t *testing.T) {
	reply := ParseReply(`{"essence":"e","memory_weight":0.4}`)
	var out struct {
		Essence string  `json:"essence"`
		Weight  float64 `json:"memory_weight"`
	}
	require.NoError(t, reply.Decode(&out))
	assert.Equal(t, "e", out.Essence)
	assert.Equal(t, 0.4, out.Weight)
	assert.Equal(t, "e", reply.Field("essence"))
	assert.Equal(t, "", reply.Text)

	assert.Error(t, Reply{Text: "x"}.Decode(&out))
}
