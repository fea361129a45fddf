package resolver

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

type Base struct {
	ID   int64
	Kind string `serde:"kind"`
}

type Item struct {
	Base
	Title  string `serde:"title,omitempty"`
	Secret string `serde:"-"`
	Count  uint32
	hidden bool
}

type Dup struct {
	A int `serde:"same"`
	B int `serde:"same"`
}

type Temperature struct {
	celsius float64
}

func (t *Temperature) Celsius() float64 { return t.celsius }

func (t *Temperature) SetCelsius(v float64) { t.celsius = v }

func names(defs []MemberDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

func TestFieldResolver(t *testing.T) {
	r := NewFieldResolver()
	assert.True(t, r.CanResolve(reflect.TypeOf(Item{})))
	assert.False(t, r.CanResolve(reflect.TypeOf(0)))
	assert.False(t, r.CanResolve(nil))

	defs, err := r.Resolve(reflect.TypeOf(Item{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "kind", "title", "Count"}, names(defs))

	item := Item{Base: Base{ID: 7, Kind: "book"}, Title: "go", Count: 3}
	owner := reflect.ValueOf(&item).Elem()
	assert.Equal(t, int64(7), defs[0].Getter(owner).Int())
	assert.Equal(t, "book", defs[1].Getter(owner).String())

	defs[2].Getter(owner).SetString("rust")
	assert.Equal(t, "rust", item.Title)
	assert.Nil(t, defs[2].Setter)

	again, err := r.Resolve(reflect.TypeOf(Item{}))
	require.NoError(t, err)
	assert.Same(t, &defs[0], &again[0], "resolved members are cached")
}

func TestFieldResolverErrors(t *testing.T) {
	r := NewFieldResolver()
	_, err := r.Resolve(reflect.TypeOf(Dup{}))
	assert.ErrorIs(t, err, merr.ErrMemberResolveFailed)
	assert.Contains(t, err.Error(), `"same"`)

	_, err = r.Resolve(reflect.TypeOf(""))
	assert.ErrorIs(t, err, merr.ErrMemberResolveFailed)
}

func TestRegistered(t *testing.T) {
	r := NewRegistered()
	typ := reflect.TypeOf(Temperature{})
	assert.False(t, r.CanResolve(typ))

	require.NoError(t, Register[Temperature](r,
		Accessor("celsius", (*Temperature).Celsius, (*Temperature).SetCelsius),
	))
	assert.True(t, r.CanResolve(typ))

	defs, err := r.Resolve(typ)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, reflect.TypeOf(float64(0)), defs[0].Type)

	temp := Temperature{celsius: 21.5}
	owner := reflect.ValueOf(&temp).Elem()
	assert.Equal(t, 21.5, defs[0].Getter(owner).Float())
	defs[0].Setter(owner, reflect.ValueOf(-3.0))
	assert.Equal(t, -3.0, temp.Celsius())

	// 不可寻址的 owner 通过副本读取。
	assert.Equal(t, 4.0, defs[0].Getter(reflect.ValueOf(Temperature{celsius: 4})).Float())

	_, err = r.Resolve(reflect.TypeOf(Item{}))
	assert.ErrorIs(t, err, merr.ErrMemberResolveFailed)
}

func TestRegisteredValidation(t *testing.T) {
	r := NewRegistered()
	assert.ErrorIs(t, r.Register(nil), merr.ErrParameterInvalid)

	err := Register[Temperature](r,
		Accessor("c", (*Temperature).Celsius, nil),
		Accessor("c", (*Temperature).Celsius, nil),
	)
	assert.ErrorIs(t, err, merr.ErrMemberResolveFailed)

	err = Register[Temperature](r, MemberDefinition{Name: "x"})
	assert.ErrorIs(t, err, merr.ErrMemberResolveFailed)
}

func TestAccessorInterfaceMember(t *testing.T) {
	type holder struct{ v any }
	def := Accessor("v", func(h *holder) any { return h.v }, func(h *holder, v any) { h.v = v })
	assert.Equal(t, reflect.TypeOf((*any)(nil)).Elem(), def.Type)

	h := holder{v: 3}
	owner := reflect.ValueOf(&h).Elem()
	got := def.Getter(owner)
	assert.Equal(t, reflect.Interface, got.Kind())
	assert.Equal(t, 3, got.Interface())

	def.Setter(owner, reflect.Zero(def.Type))
	assert.Nil(t, h.v)
}

func TestChain(t *testing.T) {
	registered := NewRegistered()
	require.NoError(t, Register[Item](registered,
		Accessor("title", func(i *Item) string { return i.Title }, nil),
	))
	chain := Chain{nil, registered, NewFieldResolver()}

	defs, err := chain.Resolve(reflect.TypeOf(Item{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, names(defs))

	defs, err = chain.Resolve(reflect.TypeOf(Base{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "kind"}, names(defs))

	assert.False(t, chain.CanResolve(reflect.TypeOf(0)))
	_, err = chain.Resolve(reflect.TypeOf(0))
	assert.ErrorIs(t, err, merr.ErrMemberResolveFailed)
}

func TestClaimant(t *testing.T) {
	registered := NewRegistered()
	require.NoError(t, Register[Item](registered,
		Accessor("title", func(i *Item) string { return i.Title }, nil),
	))
	fields := NewFieldResolver()
	chain := Chain{nil, Chain{registered}, fields}

	assert.Same(t, registered, chain.Claim(reflect.TypeOf(Item{})))
	assert.Same(t, fields, Claimant(chain, reflect.TypeOf(Base{})))
	assert.Nil(t, Claimant(chain, reflect.TypeOf(0)))
	assert.Nil(t, Claimant(registered, reflect.TypeOf(Base{})))

	assert.False(t, IsFieldResolved(chain, reflect.TypeOf(Item{})))
	assert.True(t, IsFieldResolved(chain, reflect.TypeOf(Base{})))
	assert.True(t, IsFieldResolved(fields, reflect.TypeOf(Base{})))
	assert.False(t, IsFieldResolved(nil, reflect.TypeOf(Base{})))
}
