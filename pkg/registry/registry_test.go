package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createTodoInput struct {
	Title string `json:"title" validate:"required"`
}

type createTodoOutput struct {
	ID string `json:"id"`
}

func registerCreateTodo(t *testing.T, r *Registry) {
	t.Helper()
	Register(r, Definition{
		Name:        "todo-create",
		Version:     "1.0.0",
		Description: "create a todo",
		Category:    "todo",
	}, schema.New[createTodoInput](), func(ctx *afdcontext.Context, req createTodoInput) (createTodoOutput, error) {
		return createTodoOutput{ID: "t-" + req.Title}, nil
	})
}

func TestRegisterAndExecute(t *testing.T) {
	r := New()
	registerCreateTodo(t, r)

	ctx := afdcontext.New(context.Background(), "trace", "user", constants.InterfaceDirect)
	out, _, err := r.Execute(ctx, "todo-create", json.RawMessage(`{"title":"buy milk"}`))
	require.NoError(t, err)

	var got createTodoOutput
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "t-buy milk", got.ID)
}

func TestExecuteUnknownCommand(t *testing.T) {
	r := New()
	ctx := afdcontext.New(context.Background(), "trace", "user", constants.InterfaceDirect)
	_, _, err := r.Execute(ctx, "does-not-exist", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := New()
	registerCreateTodo(t, r)
	Register(r, Definition{Name: "todo-list", Category: "todo"}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})
	Register(r, Definition{Name: "todo-delete", Category: "todo"}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})

	names := make([]string, 0)
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"todo-create", "todo-list", "todo-delete"}, names)
}

func TestDefaultExposureApplied(t *testing.T) {
	r := New()
	registerCreateTodo(t, r)
	def, ok := r.Lookup("todo-create")
	require.True(t, ok)
	assert.Equal(t, DefaultExposure, def.Exposure)
}

func TestRejectsDottedLegacyName(t *testing.T) {
	r := New()
	assert.Panics(t, func() {
		Register(r, Definition{Name: "todo.create"}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
			return struct{}{}, nil
		})
	})
}

func TestRejectsDuplicateName(t *testing.T) {
	r := New()
	registerCreateTodo(t, r)
	assert.Panics(t, func() {
		registerCreateTodo(t, r)
	})
}

func TestListByExposureFiltersUnexposed(t *testing.T) {
	r := New()
	registerCreateTodo(t, r) // default exposure: palette+agent, not mcp/cli
	Register(r, Definition{
		Name:     "todo-export",
		Category: "todo",
		Exposure: ExposureMap{Palette: true, Agent: true, MCP: true, CLI: true},
	}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})

	mcpNames := make([]string, 0)
	for _, d := range r.ListByExposure(constants.InterfaceMCP) {
		mcpNames = append(mcpNames, d.Name)
	}
	assert.Equal(t, []string{"todo-export"}, mcpNames)

	directNames := make([]string, 0)
	for _, d := range r.ListByExposure(constants.InterfaceDirect) {
		directNames = append(directNames, d.Name)
	}
	assert.Equal(t, []string{"todo-create", "todo-export"}, directNames, "direct bypasses the exposure gate")
}

func TestListByCategoryAndTags(t *testing.T) {
	r := New()
	registerCreateTodo(t, r)
	Register(r, Definition{Name: "todo-list", Category: "todo", Tags: []string{"read", "safe"}}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})
	Register(r, Definition{Name: "note-create", Category: "note", Tags: []string{"write"}}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})

	cat := r.ListByCategory("todo")
	require.Len(t, cat, 2)

	tagged := r.ListByTags("read", "safe")
	require.Len(t, tagged, 1)
	assert.Equal(t, "todo-list", tagged[0].Name)
}

func TestRegisterWarnsOnUnresolvedRequiresWithoutFailing(t *testing.T) {
	var buf bytes.Buffer
	r := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	Register(r, Definition{
		Name:     "todo-archive",
		Category: "todo",
		Requires: []string{"todo-list"},
	}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})

	_, ok := r.Lookup("todo-archive")
	assert.True(t, ok, "an unresolved requires edge must not fail registration")
	assert.Contains(t, buf.String(), "todo-list")
	assert.Contains(t, buf.String(), "todo-archive")
}

func TestRegisterDoesNotWarnWhenRequiresResolved(t *testing.T) {
	var buf bytes.Buffer
	r := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	Register(r, Definition{Name: "todo-list", Category: "todo"}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})
	Register(r, Definition{
		Name:     "todo-archive",
		Category: "todo",
		Requires: []string{"todo-list"},
	}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})
	assert.Empty(t, buf.String())
}

func TestCategoriesFirstSeenOrder(t *testing.T) {
	r := New()
	Register(r, Definition{Name: "todo-create", Category: "todo"}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})
	Register(r, Definition{Name: "note-create", Category: "note"}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})
	Register(r, Definition{Name: "todo-list", Category: "todo"}, schema.New[struct{}](), func(ctx *afdcontext.Context, req struct{}) (struct{}, error) {
		return struct{}{}, nil
	})
	assert.Equal(t, []string{"todo", "note"}, r.Categories())
}
