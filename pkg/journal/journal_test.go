package journal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/harun/docsess/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mutate applies a one-operator spec to the mirror the way a session does
func mutate(t *testing.T, mirror document.Map, op Op, path string, payload any) document.Map {
	t.Helper()
	out, err := Apply(mirror, Spec{string(op): {path: payload}})
	require.NoError(t, err)
	return out
}

func TestJournal_Empty(t *testing.T) {
	j := New()
	assert.True(t, j.IsEmpty())
	assert.Equal(t, 0, j.Len())
	assert.True(t, j.Spec().IsEmpty())
}

func TestJournal_SetLastWriterWins(t *testing.T) {
	j := New()
	mirror := document.Map{"name": "b"}

	j.Set("name", "a", mirror)
	j.Set("name", "b", mirror)

	assert.Equal(t, Spec{"$set": {"name": "b"}}, j.Spec())
}

func TestJournal_PushExtends(t *testing.T) {
	j := New()
	mirror := document.Map{}

	j.Push("tags", []any{int64(1)}, mirror)
	j.Push("tags", []any{int64(2), int64(3)}, mirror)

	want := Spec{"$push": {"tags": map[string]any{"$each": []any{int64(1), int64(2), int64(3)}}}}
	if diff := cmp.Diff(want, j.Spec()); diff != "" {
		t.Errorf("Spec() mismatch (-want +got):\n%s", diff)
	}
}

func TestJournal_AddToSetKeepsRawValues(t *testing.T) {
	j := New()
	mirror := document.Map{"a": []any{int64(2), int64(4), int64(6)}}

	j.AddToSet("a", []any{int64(2), int64(4), int64(2), int64(6)}, mirror)

	want := Spec{"$addToSet": {"a": map[string]any{"$each": []any{int64(2), int64(4), int64(2), int64(6)}}}}
	assert.Equal(t, want, j.Spec())
}

func TestJournal_PullAllExtends(t *testing.T) {
	j := New()
	mirror := document.Map{}

	j.PullAll("a", []any{int64(2)}, mirror)
	j.PullAll("a", []any{[]any{"hi"}}, mirror)

	assert.Equal(t, Spec{"$pullAll": {"a": []any{int64(2), []any{"hi"}}}}, j.Spec())
}

func TestJournal_IncSums(t *testing.T) {
	j := New()
	mirror := document.Map{"views": int64(2)}

	j.Inc("views", int64(1), mirror)
	j.Inc("views", int64(1), mirror)

	assert.Equal(t, Spec{"$inc": {"views": int64(2)}}, j.Spec())
}

func TestJournal_DisjointOperatorsCompose(t *testing.T) {
	j := New()
	mirror := document.Map{"views": int64(1), "tags": []any{"x"}, "name": "koa"}

	j.Inc("views", int64(1), mirror)
	j.Push("tags", []any{"x"}, mirror)
	j.Set("name", "koa", mirror)
	j.Unset("old", mirror)

	spec := j.Spec()
	assert.Len(t, spec, 4)
	assert.Equal(t, 4, j.Len())
	require.NoError(t, Validate(spec))
}

func TestJournal_CrossOperatorCollapsesToSet(t *testing.T) {
	mirror := document.Map{}
	j := New()

	mirror = mutate(t, mirror, OpSet, "views", int64(5))
	j.Set("views", int64(5), mirror)

	mirror = mutate(t, mirror, OpInc, "views", int64(2))
	j.Inc("views", int64(2), mirror)

	assert.Equal(t, Spec{"$set": {"views": int64(7)}}, j.Spec())
}

func TestJournal_PushThenPullCollapses(t *testing.T) {
	mirror := document.Map{}
	j := New()

	mirror = mutate(t, mirror, OpPush, "a", map[string]any{"$each": []any{int64(1), int64(2)}})
	j.Push("a", []any{int64(1), int64(2)}, mirror)

	mirror = mutate(t, mirror, OpPullAll, "a", []any{int64(1)})
	j.PullAll("a", []any{int64(1)}, mirror)

	assert.Equal(t, Spec{"$set": {"a": []any{int64(2)}}}, j.Spec())
}

func TestJournal_RepeatedPopCollapses(t *testing.T) {
	mirror := document.Map{"a": []any{int64(1), int64(2), int64(3)}}
	j := New()

	mirror = mutate(t, mirror, OpPop, "a", int64(1))
	j.Pop("a", 1, mirror)
	assert.Equal(t, Spec{"$pop": {"a": int64(1)}}, j.Spec())

	mirror = mutate(t, mirror, OpPop, "a", int64(-1))
	j.Pop("a", -1, mirror)
	assert.Equal(t, Spec{"$set": {"a": []any{int64(2)}}}, j.Spec())
}

func TestJournal_NestedPathUnderSetCollapsesToAncestor(t *testing.T) {
	mirror := document.Map{}
	j := New()

	mirror = mutate(t, mirror, OpSet, "name", map[string]any{"first": "k"})
	j.Set("name", map[string]any{"first": "k"}, mirror)

	mirror = mutate(t, mirror, OpSet, "name.last", "oa")
	j.Set("name.last", "oa", mirror)

	want := Spec{"$set": {"name": map[string]any{"first": "k", "last": "oa"}}}
	assert.Equal(t, want, j.Spec())
}

func TestJournal_SetThenUnset(t *testing.T) {
	mirror := document.Map{"name": map[string]any{"first": "k"}}
	j := New()

	mirror = mutate(t, mirror, OpSet, "name.last", "koa")
	j.Set("name.last", "koa", mirror)

	mirror = mutate(t, mirror, OpUnset, "name.last", "")
	j.Unset("name.last", mirror)

	assert.Equal(t, Spec{"$unset": {"name.last": ""}}, j.Spec())
}

func TestJournal_SetThenUnsetKeepsCreatedParents(t *testing.T) {
	mirror := document.Map{"a": map[string]any{"z": int64(1)}}
	j := New()

	mirror = mutate(t, mirror, OpSet, "a.b.c", int64(1))
	j.Set("a.b.c", int64(1), mirror)

	mirror = mutate(t, mirror, OpUnset, "a.b.c", "")
	j.Unset("a.b.c", mirror)

	assert.Equal(t, Spec{"$set": {"a.b": map[string]any{}}}, j.Spec())
}

func TestJournal_RenameAfterIncFollowsBothEnds(t *testing.T) {
	mirror := document.Map{}
	j := New()

	mirror = mutate(t, mirror, OpInc, "vews", int64(1))
	j.Inc("vews", int64(1), mirror)

	mirror = mutate(t, mirror, OpRename, "vews", "views")
	j.Rename("vews", "views", mirror)

	spec := j.Spec()
	assert.Equal(t, Spec{"$set": {"views": int64(1)}, "$unset": {"vews": ""}}, spec)
	require.NoError(t, Validate(spec))

	// The collapsed spec reproduces the mirror from an empty store document
	stored, err := Apply(document.Map{}, spec)
	require.NoError(t, err)
	assert.Equal(t, mirror, stored)
}

func TestJournal_PayloadsDoNotAliasCaller(t *testing.T) {
	j := New()
	value := []any{int64(1)}
	j.Set("a", value, document.Map{"a": value})

	value[0] = int64(99)
	assert.Equal(t, Spec{"$set": {"a": []any{int64(1)}}}, j.Spec())
}

func TestJournal_Clear(t *testing.T) {
	j := New()
	j.Set("a", int64(1), document.Map{"a": int64(1)})
	require.False(t, j.IsEmpty())

	j.Clear()
	assert.True(t, j.IsEmpty())
}

func TestJournal_MergeKeepsOlderFirst(t *testing.T) {
	older := New()
	newer := New()
	mirror := document.Map{"tags": []any{"a", "b"}, "views": int64(3)}

	older.Push("tags", []any{"a"}, mirror)
	older.Inc("views", int64(1), mirror)
	newer.Push("tags", []any{"b"}, mirror)
	newer.Inc("views", int64(2), mirror)

	older.Merge(newer, mirror)

	want := Spec{
		"$push": {"tags": map[string]any{"$each": []any{"a", "b"}}},
		"$inc":  {"views": int64(3)},
	}
	assert.Equal(t, want, older.Spec())
}

func TestJournal_CloneIsIndependent(t *testing.T) {
	j := New()
	j.Push("a", []any{int64(1)}, document.Map{})
	cp := j.Clone()

	j.Push("a", []any{int64(2)}, document.Map{})
	assert.Equal(t, Spec{"$push": {"a": map[string]any{"$each": []any{int64(1)}}}}, cp.Spec())
}

// Parents created by a collapsed entry must reach the store, or later
// operators on them act differently on the mirror and the stored document.
func TestJournal_CollapsedParentsSurviveLaterCommits(t *testing.T) {
	mirror := document.Map{}
	stored := document.Map{}
	j := New()

	commit := func() {
		t.Helper()
		var err error
		stored, err = Apply(stored, j.Spec())
		require.NoError(t, err)
		if diff := cmp.Diff(mirror, stored); diff != "" {
			t.Fatalf("stored document differs from mirror (-mirror +stored):\n%s", diff)
		}
		j = New()
	}

	mirror = mutate(t, mirror, OpSet, "profile.name", "x")
	j.Set("profile.name", "x", mirror)
	mirror = mutate(t, mirror, OpUnset, "profile.name", "")
	j.Unset("profile.name", mirror)
	mirror = mutate(t, mirror, OpPush, "tags", map[string]any{"$each": []any{int64(1)}})
	j.Push("tags", []any{int64(1)}, mirror)
	commit()

	mirror = mutate(t, mirror, OpRename, "profile", "tags")
	j.Rename("profile", "tags", mirror)
	commit()

	assert.Equal(t, document.Map{"tags": map[string]any{}}, stored)
}

// Mixed operation sequences must leave the journal's spec reproducing the mirror.
func TestJournal_SpecReproducesMirror(t *testing.T) {
	type step struct {
		op      Op
		path    string
		payload any
	}

	sequences := map[string][]step{
		"set inc push": {
			{OpSet, "a", int64(1)},
			{OpInc, "a", int64(2)},
			{OpPush, "list", map[string]any{"$each": []any{"x"}}},
			{OpPush, "list", map[string]any{"$each": []any{"y"}}},
		},
		"nested mix": {
			{OpSet, "p.name", "k"},
			{OpInc, "p.count", int64(1)},
			{OpUnset, "p", ""},
			{OpSet, "p.age", int64(3)},
		},
		"rename chain": {
			{OpSet, "a", int64(1)},
			{OpRename, "a", "b"},
			{OpRename, "b", "c"},
		},
		"nested set then unset": {
			{OpSet, "a.b.c", int64(1)},
			{OpUnset, "a.b.c", ""},
		},
		"nested inc then rename away": {
			{OpInc, "p.q.n", int64(1)},
			{OpRename, "p.q.n", "m"},
		},
		"created parent next to new sibling": {
			{OpSet, "a.b.c", int64(1)},
			{OpSet, "a.z", int64(2)},
			{OpUnset, "a.b.c", ""},
		},
		"unset both created leaves": {
			{OpSet, "a.b.c", int64(1)},
			{OpSet, "a.b.d", int64(1)},
			{OpUnset, "a.b.c", ""},
			{OpUnset, "a.b.d", ""},
			{OpPush, "a.list", map[string]any{"$each": []any{"x"}}},
		},
		"set ops": {
			{OpAddToSet, "s", map[string]any{"$each": []any{int64(1), int64(2)}}},
			{OpAddToSet, "s", map[string]any{"$each": []any{int64(2), int64(3)}}},
			{OpPop, "s", int64(-1)},
		},
	}

	for name, steps := range sequences {
		t.Run(name, func(t *testing.T) {
			mirror := document.Map{}
			j := New()
			for _, s := range steps {
				mirror = mutate(t, mirror, s.op, s.path, s.payload)
				switch s.op {
				case OpSet:
					j.Set(s.path, s.payload, mirror)
				case OpUnset:
					j.Unset(s.path, mirror)
				case OpInc:
					j.Inc(s.path, s.payload, mirror)
				case OpRename:
					j.Rename(s.path, s.payload.(string), mirror)
				case OpPush:
					j.Push(s.path, s.payload.(map[string]any)["$each"].([]any), mirror)
				case OpAddToSet:
					j.AddToSet(s.path, s.payload.(map[string]any)["$each"].([]any), mirror)
				case OpPop:
					j.Pop(s.path, s.payload.(int64), mirror)
				}
			}

			spec := j.Spec()
			require.NoError(t, Validate(spec))
			stored, err := Apply(document.Map{}, spec)
			require.NoError(t, err)
			if diff := cmp.Diff(mirror, stored); diff != "" {
				t.Errorf("stored document differs from mirror (-mirror +stored):\n%s", diff)
			}
		})
	}
}
