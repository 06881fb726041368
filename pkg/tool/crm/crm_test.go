package crm_test

import (
	"context"
	"testing"

	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/bantam-dev/bantam/pkg/tool/crm"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func newTool() (tool.Tool, repository.Repository) {
	repo := repository.NewMemory()
	return crm.New(&tool.Client{Repo: repo}), repo
}

func saveArgs() map[string]any {
	return map[string]any{
		"name":                 "Juan Perez",
		"phone":                "+56912345678",
		"email":                "juan@example.com",
		"budget":               "$10,000",
		"authority":            "CTO",
		"need":                 "sales automation",
		"timeline":             "2 weeks",
		"qualification_status": "QUALIFIED",
		"notes":                "inbound lead",
	}
}

func TestSpec(t *testing.T) {
	x, _ := newTool()

	spec := x.Spec()
	gt.NotNil(t, spec)
	gt.A(t, spec.FunctionDeclarations).Length(2)

	save := spec.FunctionDeclarations[0]
	gt.Equal(t, save.Name, "save_to_crm")
	gt.Map(t, save.Parameters.Properties).HasKey("qualification_status")
	gt.A(t, save.Parameters.Required).Length(7)

	lookup := spec.FunctionDeclarations[1]
	gt.Equal(t, lookup.Name, "get_prospect_info")
	gt.Map(t, lookup.Parameters.Properties).HasKey("phone")
}

func TestSaveToCRM(t *testing.T) {
	x, repo := newTool()

	resp, err := x.Execute(context.Background(), genai.FunctionCall{
		Name: crm.FuncSaveToCRM,
		Args: saveArgs(),
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["success"], true)
	gt.Equal(t, resp.Response["prospect_id"], "prospect_1")

	rec, err := repo.FindProspectByPhone(context.Background(), "+56912345678")
	gt.NoError(t, err)
	gt.V(t, rec).NotNil()
	gt.Equal(t, rec.Name, "Juan Perez")
	gt.Equal(t, rec.BANT.Timeline, "2 weeks")
	gt.Equal(t, string(rec.Status), "QUALIFIED")
}

func TestSaveToCRMInvalidStatus(t *testing.T) {
	x, repo := newTool()

	args := saveArgs()
	args["qualification_status"] = "MAYBE"

	resp, err := x.Execute(context.Background(), genai.FunctionCall{
		Name: crm.FuncSaveToCRM,
		Args: args,
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["success"], false)

	// Nothing persisted
	rec, err := repo.FindProspectByPhone(context.Background(), "+56912345678")
	gt.NoError(t, err)
	gt.Nil(t, rec)
}

func TestGetProspectInfo(t *testing.T) {
	x, _ := newTool()
	ctx := context.Background()

	resp, err := x.Execute(ctx, genai.FunctionCall{
		Name: crm.FuncGetProspectInfo,
		Args: map[string]any{"phone": "+56912345678"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["success"], true)
	gt.Equal(t, resp.Response["found"], false)

	_, err = x.Execute(ctx, genai.FunctionCall{Name: crm.FuncSaveToCRM, Args: saveArgs()})
	gt.NoError(t, err)

	resp, err = x.Execute(ctx, genai.FunctionCall{
		Name: crm.FuncGetProspectInfo,
		Args: map[string]any{"phone": "+56912345678"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.Response["found"], true)

	prospect, ok := resp.Response["prospect"].(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, prospect["name"], "Juan Perez")
	gt.Equal(t, prospect["budget"], "$10,000")
}

func TestUnknownFunction(t *testing.T) {
	x, _ := newTool()

	_, err := x.Execute(context.Background(), genai.FunctionCall{Name: "bogus"})
	gt.Error(t, err)
}
