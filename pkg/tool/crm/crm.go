package crm

import (
	"context"
	"encoding/json"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Function names exposed to the conversational agent. Sessions watch
// for these names when observing tool invocations.
const (
	FuncSaveToCRM       = "save_to_crm"
	FuncGetProspectInfo = "get_prospect_info"
)

type saveInput struct {
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	Email               string `json:"email"`
	Budget              string `json:"budget"`
	Authority           string `json:"authority"`
	Need                string `json:"need"`
	Timeline            string `json:"timeline"`
	QualificationStatus string `json:"qualification_status"`
	Notes               string `json:"notes"`
}

type lookupInput struct {
	Phone string `json:"phone"`
}

type crm struct {
	repo repository.Repository
}

// New creates the prospect record tool backed by the given client
func New(client *tool.Client) *crm {
	return &crm{repo: client.Repo}
}

// Flags returns CLI flags for this tool
func (x *crm) Flags() []cli.Flag {
	return nil
}

// Prompt returns additional information to be added to the system prompt
func (x *crm) Prompt(ctx context.Context) string {
	return `Use get_prospect_info at the start of a conversation to check whether the contact is already a known prospect. Once all four qualification fields (budget, authority, need, timeline) have been collected, save the prospect with save_to_crm exactly once, setting qualification_status according to the qualification criteria.`
}

// Spec returns the tool specification for Gemini function calling
func (x *crm) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        FuncSaveToCRM,
				Description: "Save a prospect record with the collected qualification fields and the qualification outcome",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name": {
							Type:        genai.TypeString,
							Description: "Prospect's full name",
						},
						"phone": {
							Type:        genai.TypeString,
							Description: "Prospect's phone number in international format",
						},
						"email": {
							Type:        genai.TypeString,
							Description: "Prospect's email address",
						},
						"budget": {
							Type:        genai.TypeString,
							Description: "Budget the prospect stated, as captured from the conversation",
						},
						"authority": {
							Type:        genai.TypeString,
							Description: "Prospect's role or decision-making authority",
						},
						"need": {
							Type:        genai.TypeString,
							Description: "The business need the prospect described",
						},
						"timeline": {
							Type:        genai.TypeString,
							Description: "When the prospect wants to start",
						},
						"qualification_status": {
							Type:        genai.TypeString,
							Description: "Qualification outcome per the criteria in the instructions",
							Enum:        []string{string(model.StatusQualified), string(model.StatusNotQualified)},
						},
						"notes": {
							Type:        genai.TypeString,
							Description: "Free-form notes about the conversation",
						},
					},
					Required: []string{"name", "phone", "budget", "authority", "need", "timeline", "qualification_status"},
				},
			},
			{
				Name:        FuncGetProspectInfo,
				Description: "Look up an existing prospect record by phone number",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"phone": {
							Type:        genai.TypeString,
							Description: "Phone number to look up, in international format",
						},
					},
					Required: []string{"phone"},
				},
			},
		},
	}
}

// Execute runs the tool with the given function call
func (x *crm) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var response map[string]any
	switch fc.Name {
	case FuncSaveToCRM:
		response, err = x.save(ctx, paramsJSON)
	case FuncGetProspectInfo:
		response, err = x.lookup(ctx, paramsJSON)
	default:
		return nil, goerr.New("unknown function", goerr.V("name", fc.Name))
	}
	if err != nil {
		return nil, err
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: response,
	}, nil
}

func (x *crm) save(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var input saveInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}

	status := model.QualificationStatus(input.QualificationStatus)
	if err := status.Validate(); err != nil {
		return map[string]any{
			"success": false,
			"message": "qualification_status must be QUALIFIED or NOT_QUALIFIED",
		}, nil
	}

	rec, err := x.repo.SaveProspect(ctx, &repository.SaveProspectInput{
		Name:  input.Name,
		Phone: input.Phone,
		Email: input.Email,
		BANT: model.BANT{
			Budget:    input.Budget,
			Authority: input.Authority,
			Need:      input.Need,
			Timeline:  input.Timeline,
		},
		Status: status,
		Notes:  input.Notes,
	})
	if err != nil {
		// Surface the failure to the agent so it can apologize instead
		// of crashing the conversation
		return map[string]any{
			"success": false,
			"message": "failed to save the prospect record, please try again later",
		}, nil
	}

	return map[string]any{
		"success":     true,
		"prospect_id": string(rec.ID),
		"message":     "prospect saved",
	}, nil
}

func (x *crm) lookup(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var input lookupInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}

	rec, err := x.repo.FindProspectByPhone(ctx, input.Phone)
	if err != nil {
		return map[string]any{
			"success": false,
			"message": "failed to look up the prospect record",
		}, nil
	}
	if rec == nil {
		return map[string]any{
			"success": true,
			"found":   false,
			"message": "no prospect record for this phone number",
		}, nil
	}

	return map[string]any{
		"success": true,
		"found":   true,
		"prospect": map[string]any{
			"id":        string(rec.ID),
			"name":      rec.Name,
			"phone":     rec.Phone,
			"email":     rec.Email,
			"budget":    rec.BANT.Budget,
			"authority": rec.BANT.Authority,
			"need":      rec.BANT.Need,
			"timeline":  rec.BANT.Timeline,
			"status":    string(rec.Status),
			"notes":     rec.Notes,
		},
	}, nil
}
