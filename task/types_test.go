package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeExtraction, ParseType("extraction"))
	assert.Equal(t, TypeRAG, ParseType("rag"))
	assert.Equal(t, Type(""), ParseType("translation"))
	assert.Equal(t, Type(""), ParseType(""))
}

func TestEffectiveModel(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want string
	}{
		{
			name: "target model wins",
			task: Task{TargetModel: "m1", Constraints: Constraints{PreferredModel: "m2"}},
			want: "m1",
		},
		{
			name: "constraint preference second",
			task: Task{Constraints: Constraints{PreferredModel: "m2"}},
			want: "m2",
		},
		{
			name: "unspecified fallback",
			task: Task{},
			want: UnspecifiedModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.EffectiveModel())
		})
	}
}

func TestLessOrdering(t *testing.T) {
	now := time.Now()
	early := Task{Priority: 1, Deadline: now}
	late := Task{Priority: 1, Deadline: now.Add(time.Hour)}
	urgent := Task{Priority: 0}
	noDeadline := Task{Priority: 1}

	assert.True(t, urgent.Less(early), "lower priority value runs first")
	assert.True(t, early.Less(late), "earlier deadline breaks priority tie")
	assert.True(t, late.Less(noDeadline), "zero deadline sorts last")
	assert.False(t, noDeadline.Less(early))
}
