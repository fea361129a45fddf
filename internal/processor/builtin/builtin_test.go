package builtin

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/resolver"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

type Point struct {
	X int32
	Y int32
}

type OtherPoint struct {
	X int32
	Y int32
}

type PointXZ struct {
	X int32
	Z int32
}

type Level uint8

const (
	LevelLow Level = iota + 1
	LevelHigh
)

type Blob []byte

type Inner struct {
	A int32
	B float64
}

type Record struct {
	Flag     bool
	Int      int
	I8       int8
	I16      int16
	U        uint
	U16      uint16
	U64      uint64
	F32      float32
	C128     complex128
	Name     string
	Raw      []byte
	Blob     Blob
	Ints     []int32
	Words    []string
	Fixed    [3]int16
	Counts   map[string]int32
	Labels   map[int]string
	Ptr      *Inner
	NilPtr   *Inner
	Inner    Inner
	Inners   []Inner
	Level    Level
	Levels   []Level
	Timeout  time.Duration
	When     time.Time
	Nested   [][]uint16
	Skipped  string `serde:"-"`
	internal int
}

func sampleRecord() Record {
	return Record{
		Flag:    true,
		Int:     -42,
		I8:      math.MinInt8,
		I16:     -300,
		U:       1 << 40,
		U16:     math.MaxUint16,
		U64:     math.MaxUint64,
		F32:     1.5,
		C128:    complex(2.5, -0.25),
		Name:    "serde 序列化",
		Raw:     []byte{0, 1, 2, 255},
		Blob:    Blob("blob"),
		Ints:    []int32{-1, 0, math.MaxInt32},
		Words:   []string{"a", "", "ccc"},
		Fixed:   [3]int16{-1, 2, -3},
		Counts:  map[string]int32{"b": 2, "a": 1},
		Labels:  map[int]string{3: "three", -1: "minus"},
		Ptr:     &Inner{A: 9, B: 0.5},
		Inner:   Inner{A: -9, B: -0.5},
		Inners:  []Inner{{A: 1}, {B: 2}},
		Level:   LevelHigh,
		Levels:  []Level{LevelLow, LevelHigh},
		Timeout: 1500 * time.Millisecond,
		When:    time.Unix(1700000000, 123).UTC(),
		Nested:  [][]uint16{{1, 2}, nil, {3}},
	}
}

type Tree struct {
	Value    int32
	Children []Tree
	Next     *Tree
}

type Shape interface {
	Area() float64
}

type Circle struct{ R float64 }

func (c Circle) Area() float64 { return math.Pi * c.R * c.R }

type Square struct{ S float64 }

func (s *Square) Area() float64 { return s.S * s.S }

type Canvas struct {
	Shapes []Shape
	Main   Shape
	Any    any
}

type Handle struct{ ID int }

func (*Handle) ExternalReference() {}

type Session struct {
	Name  string
	Conn  *Handle
	Other *Handle
	Chan  chan int
}

type Temperature struct {
	celsius float64
}

type Hidden struct {
	Keep int32
	Drop int32 `serde:"-"`
}

type BuiltinSuite struct {
	suite.Suite
	registry  *processor.Registry
	overrides *resolver.Registered
}

func (s *BuiltinSuite) SetupTest() {
	s.overrides = resolver.NewRegistered()
	s.Require().NoError(resolver.Register[Temperature](s.overrides,
		resolver.Accessor("celsius",
			func(t *Temperature) float64 { return t.celsius },
			func(t *Temperature, v float64) { t.celsius = v }),
	))
	registry, err := processor.NewRegistry()
	s.Require().NoError(err)
	s.Require().NoError(Register(registry, Options{
		Structures: resolver.Chain{s.overrides, resolver.NewFieldResolver()},
		References: []reflect.Type{reflect.TypeOf(make(chan int))},
	}))
	s.registry = registry
}

func (s *BuiltinSuite) marshal(cfg wire.Config, v any, refs wire.ReferenceWriter) ([]byte, error) {
	p, err := s.registry.Resolve(reflect.TypeOf(v))
	if err != nil {
		return nil, err
	}
	w := wire.NewWriter(cfg, 0)
	if refs != nil {
		w.SetReferenceWriter(refs)
	}
	if err := p.Process(w, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	data := append([]byte(nil), w.Bytes()...)
	if err := w.Release(); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BuiltinSuite) unmarshal(cfg wire.Config, data []byte, ptr any, refs wire.ReferenceReader) error {
	target := reflect.ValueOf(ptr).Elem()
	p, err := s.registry.Resolve(target.Type())
	if err != nil {
		return err
	}
	r := wire.NewReader(cfg, data)
	if refs != nil {
		r.SetReferenceReader(refs)
	}
	if err := p.Process(r, target); err != nil {
		return err
	}
	return r.Release()
}

func (s *BuiltinSuite) TestScenario() {
	data, err := s.marshal(wire.Config{Options: wire.Compact}, Point{X: 3, Y: -7}, nil)
	s.Require().NoError(err)
	s.Equal([]byte{0x81, 0x00, 0x06, 0x0D, 0x00, 0x82}, data)

	var p Point
	s.Require().NoError(s.unmarshal(wire.Config{Options: wire.Compact}, data, &p, nil))
	s.Equal(Point{X: 3, Y: -7}, p)
}

func (s *BuiltinSuite) TestRoundTripAllOptions() {
	want := sampleRecord()
	for _, opts := range wire.AllCombinations() {
		cfg := wire.Config{Options: opts}
		data, err := s.marshal(cfg, want, nil)
		s.Require().NoError(err, opts.String())

		var got Record
		s.Require().NoError(s.unmarshal(cfg, data, &got, nil), opts.String())
		s.True(want.When.Equal(got.When), opts.String())
		expected := want
		expected.When, got.When = time.Time{}, time.Time{}
		s.Equal(expected, got, opts.String())
	}
}

func (s *BuiltinSuite) TestNilAndEmpty() {
	type holder struct {
		Slice []string
		Empty []string
		Map   map[string]int32
		Ptr   *Point
	}
	in := holder{Empty: []string{}}
	data, err := s.marshal(wire.Config{Options: wire.Default}, in, nil)
	s.Require().NoError(err)

	out := holder{Slice: []string{"stale"}, Map: map[string]int32{"x": 1}, Ptr: &Point{X: 1}}
	s.Require().NoError(s.unmarshal(wire.Config{Options: wire.Default}, data, &out, nil))
	s.Nil(out.Slice)
	s.Nil(out.Empty)
	s.Nil(out.Map)
	s.Nil(out.Ptr)
}

func (s *BuiltinSuite) TestMapOrdering() {
	counts := map[string]int32{"b": 2, "a": 1}
	data, err := s.marshal(wire.Config{Options: wire.Compact}, counts, nil)
	s.Require().NoError(err)
	s.Equal([]byte{0x83, 0x00, 0x02, 0x01, 'a', 0x02, 0x01, 'b', 0x04, 0x00, 0x84}, data)
}

func (s *BuiltinSuite) TestRecursiveType() {
	want := Tree{
		Value: 1,
		Children: []Tree{
			{Value: 2, Children: []Tree{{Value: 3}}},
			{Value: 4, Next: &Tree{Value: 5}},
		},
	}
	cfg := wire.Config{Options: wire.SelfDescribing}
	data, err := s.marshal(cfg, want, nil)
	s.Require().NoError(err)

	var got Tree
	s.Require().NoError(s.unmarshal(cfg, data, &got, nil))
	s.Equal(want, got)
}

func (s *BuiltinSuite) TestRuntimeCycleHitsDepthLimit() {
	cycle := &Tree{Value: 1}
	cycle.Next = cycle
	_, err := s.marshal(wire.Config{Options: wire.Default, MaxDepth: 32}, cycle, nil)
	s.ErrorIs(err, merr.ErrDepthLimitExceeded)
}

func (s *BuiltinSuite) TestInterfaces() {
	types := wire.NewTypeRegistry()
	s.Require().NoError(types.Register(Circle{}, &Square{}))
	cfg := wire.Config{Options: wire.SelfDescribing, Types: types}

	want := Canvas{
		Shapes: []Shape{Circle{R: 1}, &Square{S: 2}, nil},
		Main:   &Square{S: 3},
		Any:    "plain string",
	}
	data, err := s.marshal(cfg, want, nil)
	s.Require().NoError(err)

	var got Canvas
	s.Require().NoError(s.unmarshal(cfg, data, &got, nil))
	s.Equal(want, got)

	_, err = s.marshal(wire.Config{Options: wire.Default}, want, nil)
	s.ErrorIs(err, merr.ErrOptionRequired)
}

func (s *BuiltinSuite) TestInterfaceRejectsForeignType() {
	types := wire.NewTypeRegistry()
	s.Require().NoError(types.Register(Point{}))
	cfg := wire.Config{Options: wire.SelfDescribing, Types: types}

	anyProcessor, err := s.registry.Resolve(processor.TypeOf[any]())
	s.Require().NoError(err)
	var written any = Point{X: 1}
	w := wire.NewWriter(cfg, 0)
	s.Require().NoError(anyProcessor.Process(w, reflect.ValueOf(&written).Elem()))

	shapeProcessor, err := s.registry.Resolve(processor.TypeOf[Shape]())
	s.Require().NoError(err)
	var shape Shape
	err = shapeProcessor.Process(wire.NewReader(cfg, w.Bytes()), reflect.ValueOf(&shape).Elem())
	s.ErrorIs(err, merr.ErrFormatTypeMismatch)
	s.Nil(shape)
}

func (s *BuiltinSuite) TestReferences() {
	conn := &Handle{ID: 7}
	ch := make(chan int)
	want := Session{Name: "s1", Conn: conn, Chan: ch}
	cfg := wire.Config{Options: wire.Default}

	table := &wire.ReferenceTable{}
	data, err := s.marshal(cfg, want, table)
	s.Require().NoError(err)
	s.Equal([]any{conn, ch}, table.ReferenceTable())

	var got Session
	s.Require().NoError(s.unmarshal(cfg, data, &got, wire.NewReferenceTable(table.ReferenceTable()...)))
	s.Same(conn, got.Conn)
	s.Nil(got.Other)
	s.Equal(ch, got.Chan)

	_, err = s.marshal(cfg, want, nil)
	s.ErrorIs(err, merr.ErrReferenceUnavailable)

	err = s.unmarshal(cfg, data, &got, wire.NewReferenceTable("not a handle"))
	s.ErrorIs(err, merr.ErrFormatTypeMismatch)
}

func (s *BuiltinSuite) TestObjectTypeMismatch() {
	types := wire.NewTypeRegistry()
	s.Require().NoError(types.Register(Point{}, OtherPoint{}))
	cfg := wire.Config{Options: wire.SelfDescribing, Types: types}

	data, err := s.marshal(cfg, Point{X: 1, Y: 2}, nil)
	s.Require().NoError(err)
	var other OtherPoint
	s.ErrorIs(s.unmarshal(cfg, data, &other, nil), merr.ErrFormatTypeMismatch)

	// 不携带类型时布局相同即可互通。
	data, err = s.marshal(wire.Config{Options: wire.Default}, Point{X: 1, Y: 2}, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.unmarshal(wire.Config{Options: wire.Default}, data, &other, nil))
	s.Equal(OtherPoint{X: 1, Y: 2}, other)
}

func (s *BuiltinSuite) TestMemberNameMismatch() {
	cfg := wire.Config{Options: wire.Default.With(wire.IncludeMemberNames)}
	data, err := s.marshal(cfg, Point{X: 1, Y: 2}, nil)
	s.Require().NoError(err)

	var xz PointXZ
	err = s.unmarshal(cfg, data, &xz, nil)
	s.ErrorIs(err, merr.ErrFormatMemberNameMismatch)
	s.Contains(err.Error(), "Z")
}

func (s *BuiltinSuite) TestArrayLengthMismatch() {
	cfg := wire.Config{Options: wire.Default}
	data, err := s.marshal(cfg, [3]int16{1, 2, 3}, nil)
	s.Require().NoError(err)

	var short [2]int16
	s.ErrorIs(s.unmarshal(cfg, data, &short, nil), merr.ErrFormatLengthMismatch)
}

func (s *BuiltinSuite) TestPODFastPath() {
	cfg := wire.Config{Options: wire.Fast}
	data, err := s.marshal(cfg, Point{X: 1, Y: 2}, nil)
	s.Require().NoError(err)
	s.Len(data, 8)

	var p Point
	s.Require().NoError(s.unmarshal(cfg, data, &p, nil))
	s.Equal(Point{X: 1, Y: 2}, p)

	// 含有被排除字段的类型仍按成员编码。
	data, err = s.marshal(cfg, Hidden{Keep: 1, Drop: 2}, nil)
	s.Require().NoError(err)
	var h Hidden
	s.Require().NoError(s.unmarshal(cfg, data, &h, nil))
	s.Equal(Hidden{Keep: 1}, h)

	// 切片元素为 POD 时整体拷贝：1 字节长度 + 2*8 字节。
	data, err = s.marshal(cfg, []Point{{1, 2}, {3, 4}}, nil)
	s.Require().NoError(err)
	s.Len(data, 17)
}

func (s *BuiltinSuite) TestRegisteredMembers() {
	cfg := wire.Config{Options: wire.Fast}
	data, err := s.marshal(cfg, Temperature{celsius: 36.6}, nil)
	s.Require().NoError(err)

	var got Temperature
	s.Require().NoError(s.unmarshal(cfg, data, &got, nil))
	s.Equal(36.6, got.celsius)
}

func (s *BuiltinSuite) TestLenientTruncation() {
	cfg := wire.Config{Options: wire.Compact, Lenient: true}
	var p Point
	s.Require().NoError(s.unmarshal(cfg, []byte{0x81, 0x00, 0x06}, &p, nil))
	s.Equal(Point{X: 3}, p)

	cfg.Lenient = false
	s.ErrorIs(s.unmarshal(cfg, []byte{0x81, 0x00, 0x06}, &p, nil), merr.ErrBufferExhausted)
}

func (s *BuiltinSuite) TestCustomCandidateOverridesBuiltin() {
	type segment struct{ A Point }
	cfg := wire.Config{Options: wire.Compact}
	data, err := s.marshal(cfg, segment{A: Point{X: 1, Y: 2}}, nil)
	s.Require().NoError(err)
	s.Equal([]byte{0x81, 0x00, 0x81, 0x01, 0x02, 0x04, 0x01, 0x82, 0x00, 0x82}, data)

	s.Require().NoError(s.registry.Register(processor.Candidate{
		Name:   "upper-point",
		Target: reflect.TypeOf(Point{}),
		New: func(t reflect.Type) (processor.Processor, error) {
			return &processor.Func{T: t, Fn: func(f wire.Formatter, v reflect.Value) error {
				sum := int32(v.Field(0).Int() + v.Field(1).Int())
				if err := f.FormatInt32(&sum); err != nil {
					return err
				}
				if f.Direction() == wire.DirectionRead {
					v.Field(0).SetInt(int64(sum))
				}
				return nil
			}}, nil
		},
	}))
	data, err = s.marshal(cfg, Point{X: 1, Y: 2}, nil)
	s.Require().NoError(err)
	s.Equal([]byte{0x06}, data)

	// 已缓存的外层结构体随 Register 失效，成员同样使用新候选。
	data, err = s.marshal(cfg, segment{A: Point{X: 1, Y: 2}}, nil)
	s.Require().NoError(err)
	s.Equal([]byte{0x81, 0x00, 0x06, 0x00, 0x82}, data)
}

func (s *BuiltinSuite) TestUnsupportedKind() {
	_, err := s.registry.Resolve(reflect.TypeOf(func() {}))
	s.ErrorIs(err, merr.ErrProcessorNotFound)
}

func (s *BuiltinSuite) TestUnsupportedMemberFailsAtResolve() {
	type job struct {
		ID   int32
		Done func()
	}
	_, err := s.registry.Resolve(reflect.TypeOf(job{}))
	s.ErrorIs(err, merr.ErrProcessorNotFound)
	s.Contains(err.Error(), "Done")
	_, ok := s.registry.Lookup(reflect.TypeOf(job{}))
	s.False(ok)

	type wrapper struct{ Jobs []job }
	s.ErrorIs(s.registry.Warmup(reflect.TypeOf(wrapper{})), merr.ErrProcessorNotFound)

	// 自引用类型依然可以在构造阶段完成全部成员解析。
	p, err := s.registry.Resolve(reflect.TypeOf(Tree{}))
	s.Require().NoError(err)
	s.Equal(reflect.TypeOf(Tree{}), p.Type())
}

func TestBuiltin(t *testing.T) {
	suite.Run(t, new(BuiltinSuite))
}

func TestPredicates(t *testing.T) {
	assert.True(t, isEnum(reflect.TypeOf(LevelLow)))
	assert.False(t, isEnum(reflect.TypeOf(uint8(0))))
	assert.True(t, isPrimitive(reflect.TypeOf(uint8(0))))
	assert.False(t, isPrimitive(reflect.TypeOf(LevelLow)))
	assert.True(t, isPrimitive(reflect.TypeOf(Blob(nil))))
	assert.False(t, isPrimitive(reflect.TypeOf([]Level(nil))))
	assert.False(t, isPrimitive(reflect.TypeOf([]int(nil))))
	assert.True(t, isBinaryMarshaler(reflect.TypeOf(time.Time{})))
	assert.False(t, isBinaryMarshaler(reflect.TypeOf(&time.Time{})))
	assert.True(t, plainLayout(reflect.TypeOf(Point{})))
	assert.False(t, plainLayout(reflect.TypeOf(Hidden{})))
	assert.False(t, plainLayout(reflect.TypeOf(Temperature{})))
}

func TestCandidateTable(t *testing.T) {
	registry, err := processor.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, Register(registry, Options{}))

	names := make([]string, 0)
	for _, info := range registry.Candidates() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{
		"primitive", "enum", "duration", "binary-marshaler", "reference",
		"array", "list", "dictionary", "pointer", "interface", "object",
	}, names)

	// time.Duration 命中精确候选而不是 enum。
	p, err := registry.Resolve(reflect.TypeOf(time.Second))
	require.NoError(t, err)
	w := wire.NewWriter(wire.Config{Options: wire.Compact}, 0)
	d := 2 * time.Second
	require.NoError(t, p.Process(w, reflect.ValueOf(d)))
	assert.Equal(t, wire.AppendUvarint(nil, wire.ZigZagEncode(int64(d))), w.Bytes())
}
