package tools_test

import (
	"context"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/registry"
	"github.com/effective-security/mcpbridge/providers"
	"github.com/effective-security/mcpbridge/providers/providertest"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T, fx *providertest.Fixture, names ...string) []*providers.Session {
	t.Helper()
	g := fx.Manager().OpenMany(context.Background(), fx.Registry, names)
	require.Empty(t, g.Failures)
	t.Cleanup(func() { _ = g.Close() })
	return g.Sessions
}

func Test_Catalogue_SingleProvider(t *testing.T) {
	fx := providertest.NewFixture().
		Add("calc", providertest.Add("add"), providertest.Fail("fail"))
	c := tools.NewCatalogue(openAll(t, fx, "calc")...)

	assert.False(t, c.Namespaced())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"add", "fail"}, c.Names())

	defs := c.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "add", defs[0].Function.Name)
	assert.Equal(t, "Adds two numbers", defs[0].Function.Description)
	assert.Equal(t, "object", defs[0].Function.Parameters["type"])

	tool, ok := c.Lookup("add")
	require.True(t, ok)
	assert.Equal(t, "calc", tool.Provider())
	assert.Equal(t, "add", tool.ToolName())

	ctx := context.Background()
	out, err := tool.Call(ctx, `{"a": 1.5, "b": 2}`)
	require.NoError(t, err)
	assert.Equal(t, "3.5", out)

	// lenient arguments
	out, err = tool.Call(ctx, "```json\n{\"a\": 1, \"b\": 2}\n```")
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	_, err = tool.Call(ctx, "{{{")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llmutils.ErrInvalidArguments))

	fail, ok := c.Lookup("fail")
	require.True(t, ok)
	_, err = fail.Call(ctx, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrToolFailed))
	assert.Contains(t, err.Error(), "tool is broken")

	_, ok = c.Lookup("calc__add")
	assert.False(t, ok)
}

func Test_Catalogue_Namespaced(t *testing.T) {
	fx := providertest.NewFixture().
		Add("alpha", providertest.Echo("echo")).
		Add("beta", providertest.Echo("echo"), providertest.Upper("upper"))
	c := tools.NewCatalogue(openAll(t, fx, "alpha", "beta")...)

	assert.True(t, c.Namespaced())
	assert.Equal(t, []string{"alpha__echo", "beta__echo", "beta__upper"}, c.Names())

	ctx := context.Background()
	for _, name := range []string{"alpha__echo", "beta__echo"} {
		tool, ok := c.Lookup(name)
		require.True(t, ok)
		provider, toolName, ok := tools.SplitName(name)
		require.True(t, ok)
		assert.Equal(t, provider, tool.Provider())
		assert.Equal(t, toolName, tool.ToolName())

		out, err := tool.Call(ctx, `{"text":"x"}`)
		require.NoError(t, err)
		assert.Equal(t, "echo: x", out)
	}

	_, ok := c.Lookup("echo")
	assert.False(t, ok)
}

func Test_Catalogue_Empty(t *testing.T) {
	c := tools.NewCatalogue()
	assert.False(t, c.Namespaced())
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Definitions())
	assert.Empty(t, c.Names())
}

func Test_Catalogue_Duplicates(t *testing.T) {
	// registry documents reject such provider names
	require.Error(t, registry.ValidName("a__b"))
	sessions := []*providers.Session{
		providers.NewSession("a__b", nil, []*providers.ToolDescriptor{{Name: "c"}}),
		providers.NewSession("a", nil, []*providers.ToolDescriptor{{Name: "b__c"}}),
	}
	c := tools.NewCatalogue(sessions...)
	assert.Equal(t, []string{"a__b__c"}, c.Names())
	tool, _ := c.Lookup("a__b__c")
	assert.Equal(t, "a__b", tool.Provider())
}

func Test_QualifiedName(t *testing.T) {
	assert.Equal(t, "tool", tools.QualifiedName("p", "tool", false))
	assert.Equal(t, "p__tool", tools.QualifiedName("p", "tool", true))

	p, n, ok := tools.SplitName("p__tool__x")
	assert.True(t, ok)
	assert.Equal(t, "p", p)
	assert.Equal(t, "tool__x", n)

	_, _, ok = tools.SplitName("tool")
	assert.False(t, ok)
}

func Test_Catalogue_RandomNames(t *testing.T) {
	ctx := context.Background()
	fx := providertest.NewFixture()

	want := map[string]string{}
	var names []string
	for len(names) < 5 {
		provider := strings.ToLower(gofakeit.LetterN(8))
		if _, exists := want[provider]; exists {
			continue
		}
		tool := strings.ToLower(gofakeit.LetterN(6))
		want[provider] = tool
		names = append(names, provider)
		fx.Add(provider, providertest.Echo(tool))
	}

	c := tools.NewCatalogue(openAll(t, fx, names...)...)
	require.True(t, c.Namespaced())
	require.Equal(t, len(names), c.Len())

	for i, name := range c.Names() {
		provider, tool, ok := tools.SplitName(name)
		require.True(t, ok, name)
		assert.Equal(t, names[i], provider)
		assert.Equal(t, want[provider], tool)

		pt, ok := c.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, provider, pt.Provider())
		assert.Equal(t, tool, pt.ToolName())

		text := gofakeit.Word()
		out, err := pt.Call(ctx, llmutils.ToJSON(map[string]any{"text": text}))
		require.NoError(t, err)
		assert.Equal(t, tool+": "+text, out)
	}
}
