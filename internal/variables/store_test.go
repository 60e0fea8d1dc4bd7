package variables

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CaseInsensitive(t *testing.T) {
	s := New(nil, nil)
	s.Set("foo", "v")

	for _, name := range []string{"foo", "Foo", "FOO", " fOo "} {
		v, ok := s.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, "v", v)
	}

	s.Set("FOO", "w")
	v, _ := s.Get("foo")
	assert.Equal(t, "w", v)
	assert.Equal(t, []string{"FOO"}, s.Keys())
}

func TestStore_ChainLookup(t *testing.T) {
	s := New(nil, nil)
	s.Set("fruits", map[string]any{
		"banana": map[string]any{"color": "yellow"},
	})

	for _, chain := range []string{
		"fruits.banana.color",
		"fruits > banana > color",
		"fruits,banana,color",
		"Fruits.Banana.Color",
	} {
		v, ok := s.Get(chain)
		require.True(t, ok, chain)
		assert.Equal(t, "yellow", v, chain)
	}
}

func TestStore_ChainWithIndexes(t *testing.T) {
	s := New(nil, nil)
	s.Set("response", map[string]any{
		"items": []any{
			map[string]any{"id": float64(7), "tags": []any{"a", "b"}},
		},
	})
	s.Set("list", []any{"zero", "one"})

	tests := []struct {
		chain string
		want  any
	}{
		{"response.items[0].id", float64(7)},
		{"response > items > [0] > id", float64(7)},
		{"response.items[0].tags[1]", "b"},
		{"list[1]", "one"},
		{"list.[0]", "zero"},
	}
	for _, tt := range tests {
		t.Run(tt.chain, func(t *testing.T) {
			v, ok := s.Lookup(tt.chain)
			require.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}

	_, ok := s.Lookup("response.items[3].id")
	assert.False(t, ok)
	_, ok = s.Lookup("list.missing")
	assert.False(t, ok)
}

func TestStore_FullKeyWinsOverChain(t *testing.T) {
	s := New(nil, map[string]string{"app.url": "https://stand"})
	s.Set("app", map[string]any{"url": "nested"})

	v, ok := s.Get("APP.URL")
	require.True(t, ok)
	assert.Equal(t, "https://stand", v)
}

func TestStore_SoftMiss(t *testing.T) {
	s := New(nil, nil)

	v, ok := s.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, v)

	v, err := s.Resolve("nope")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, "", s.GetString("nope"))
}

func TestStore_StrictMode(t *testing.T) {
	s := New(nil, nil, WithStrict(true))
	assert.True(t, s.Strict())

	_, err := s.Resolve("nope")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Name)

	_, err = New(nil, nil).MustGet("nope")
	assert.ErrorAs(t, err, &notFound)
}

func TestNew_InitializationOrder(t *testing.T) {
	s := New(
		map[string]any{"token": "from-vault", "db_password": "secret"},
		map[string]string{"TOKEN": "from-env", "HOME": "/root"},
	)

	v, _ := s.Get("token")
	assert.Equal(t, "from-env", v, "environment overlays secrets")

	v, _ = s.Get("db_password")
	assert.Equal(t, "secret", v)
}

func TestStore_ExportOnlyRuntimeEntries(t *testing.T) {
	s := New(map[string]any{"secret": "x"}, map[string]string{"HOME": "/root"})
	s.Set("order_id", "42")
	s.Set("HOME", "/tmp")

	assert.Equal(t, map[string]any{"order_id": "42", "HOME": "/tmp"}, s.Export())
	assert.Len(t, s.Snapshot(), 3)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set("counter", i)
		}()
		go func() {
			defer wg.Done()
			s.Lookup("counter")
			s.Snapshot()
		}()
	}
	wg.Wait()

	_, ok := s.Lookup("counter")
	assert.True(t, ok)
}

func TestEnviron(t *testing.T) {
	env := Environ([]string{"A=1", "B=x=y", "broken", "=nokey"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, env)
}

func TestString(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "abc", String("abc"))
	assert.Equal(t, "42", String(42))
	assert.Equal(t, "true", String(true))
}
