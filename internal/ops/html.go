package ops

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/codec"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/operror"
)

type sanitizeArgs struct {
	HTML   string `json:"html"`
	Policy string `json:"policy" validate:"omitempty,oneof=ugc strict"`
}

func opHTMLSanitize(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a sanitizeArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	policy := bluemonday.UGCPolicy()
	if a.Policy == "strict" {
		policy = bluemonday.StrictPolicy()
	}
	return immediate(policy.Sanitize(a.HTML))
}

type selectArgs struct {
	HTML     string `json:"html"`
	Selector string `json:"selector" validate:"required"`
	Attr     string `json:"attr"`
}

// opHTMLSelect returns the trimmed text (or attribute value) of every
// element matching a CSS selector.
func opHTMLSelect(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a selectArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(a.HTML))
	if err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "parse html: %v", err)
	}

	out := []string{}
	doc.Find(a.Selector).Each(func(_ int, sel *goquery.Selection) {
		if a.Attr == "" {
			out = append(out, strings.TrimSpace(sel.Text()))
			return
		}
		if v, ok := sel.Attr(a.Attr); ok {
			out = append(out, v)
		}
	})
	return immediate(out)
}

type xpathArgs struct {
	HTML string `json:"html"`
	Expr string `json:"expr" validate:"required"`
}

func opHTMLXPath(_ *State, args codec.Args, _ []byte) (dispatch.Outcome, error) {
	var a xpathArgs
	if err := args.Bind(&a); err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(strings.NewReader(a.HTML))
	if err != nil {
		return nil, operror.Newf(operror.KindInvalidData, "parse html: %v", err)
	}
	nodes, err := htmlquery.QueryAll(doc, a.Expr)
	if err != nil {
		return nil, operror.Newf(operror.KindTypeError, "invalid xpath %q: %v", a.Expr, err)
	}

	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, strings.TrimSpace(htmlquery.InnerText(n)))
	}
	return immediate(out)
}
