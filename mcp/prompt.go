package mcp

import (
	"context"
	"fmt"

	"github.com/ka2n/mcp-servers/api"
	"github.com/mark3labs/mcp-go/mcp"
)

const deepAnalysisInstructions = `Analyze the arXiv paper %[1]s in depth.

Workflow:
1. Call list_papers to check whether %[1]s is already stored. If it is not, call download_paper with paper_id %[1]s and poll it with check_status until the status is success.
2. Call read_paper to load the full text.
3. Use search_papers to find closely related or follow-up work when it helps to place the paper in context.

Structure your analysis with these sections:
- Executive summary: the problem, the approach and the main result in a few sentences.
- Research context: prior work the paper builds on and the gap it addresses.
- Methodology: the method in enough detail to reproduce it, including assumptions.
- Results: the key findings with the numbers that support them.
- Limitations: weaknesses, threats to validity and open questions.
- Implications: what the work enables in practice and for future research.

Cite sections or equations of the paper when you refer to them.`

func deepAnalysisPrompt() mcp.Prompt {
	return mcp.NewPrompt("deep-paper-analysis",
		mcp.WithPromptDescription("Analyze an arXiv paper in depth using the paper tools"),
		mcp.WithArgument("paper_id",
			mcp.ArgumentDescription("arXiv identifier of the paper to analyze"),
			mcp.RequiredArgument(),
		),
	)
}

func (s *ArxivServer) handleDeepAnalysis(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id, err := api.ParseID(req.Params.Arguments["paper_id"])
	if err != nil {
		return nil, err
	}

	return mcp.NewGetPromptResult(
		"Deep analysis of arXiv paper "+id.String(),
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(fmt.Sprintf(deepAnalysisInstructions, id.String()))),
		},
	), nil
}
