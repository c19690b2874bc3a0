package flow

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/bank"
	"github.com/sells-group/supplier-verify/internal/mapper"
	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/qr"
	"github.com/sells-group/supplier-verify/internal/sat"
)

// Declared holds the values the supplier typed next to an upload.
type Declared struct {
	Account string `json:"account,omitempty"`
	CLABE   string `json:"clabe,omitempty"`
}

// Outcome is what processing one document produced. Exactly one of the
// records is set, matching the document type.
type Outcome struct {
	URL          string                   `json:"url,omitempty"`
	Registration *model.TaxRegistration   `json:"registration,omitempty"`
	Opinion      *model.ComplianceOpinion `json:"opinion,omitempty"`
	Bank         *bank.Verification       `json:"bank,omitempty"`
}

// Processor turns an uploaded PDF into its canonical record.
type Processor interface {
	Process(ctx context.Context, doc model.DocumentType, pdfPath string, declared Declared) (*Outcome, error)
}

// Locator finds the SAT QR payload of a PDF.
type Locator interface {
	Locate(ctx context.Context, pdfPath string, target qr.Target) (*qr.Result, error)
}

// StatementReader recognizes bank statements.
type StatementReader interface {
	Recognize(ctx context.Context, pdfPath string) (*bank.Statement, error)
}

// Pipeline is the default Processor: QR scan, validator fetch and mapping
// for tax documents, text recognition for bank statements.
type Pipeline struct {
	locator  Locator
	verifier sat.Verifier
	mapper   *mapper.Mapper
	bank     StatementReader
}

// NewPipeline creates a Pipeline.
func NewPipeline(locator Locator, verifier sat.Verifier, m *mapper.Mapper, statements StatementReader) *Pipeline {
	if m == nil {
		m = mapper.New(nil)
	}
	return &Pipeline{locator: locator, verifier: verifier, mapper: m, bank: statements}
}

// Process implements Processor.
func (p *Pipeline) Process(ctx context.Context, doc model.DocumentType, pdfPath string, declared Declared) (*Outcome, error) {
	if doc == model.DocBankStatement {
		st, err := p.bank.Recognize(ctx, pdfPath)
		if err != nil {
			return nil, err
		}
		v, err := bank.Verify(st, declared.Account, declared.CLABE)
		if err != nil {
			return nil, err
		}
		return &Outcome{Bank: v}, nil
	}

	res, err := p.locator.Locate(ctx, pdfPath, qr.PageBoth)
	if err != nil {
		return nil, err
	}
	primary, aux := pickURLs(res, doc)
	if primary == "" {
		got := sat.ParseQuery(res.Primary()).Type
		return nil, model.Errorf(model.KindParseFailed, "QR code belongs to a %s document, expected %s", got, doc).
			WithDetail("url", res.Primary())
	}

	ext, err := p.verifier.Fetch(ctx, primary)
	if err != nil {
		return nil, err
	}

	out := &Outcome{URL: primary}
	switch doc {
	case model.DocRegistration:
		out.Registration = p.mapper.Registration(ext, p.auxText(ctx, aux))
	case model.DocOpinion:
		out.Opinion = p.mapper.Opinion(ext, nil)
	}
	return out, nil
}

// pickURLs returns the first candidate verifying doc and any other
// candidate as the auxiliary URL.
func pickURLs(res *qr.Result, doc model.DocumentType) (primary, aux string) {
	for _, c := range res.Candidates {
		switch {
		case primary == "" && sat.ParseQuery(c.URL).Type == doc:
			primary = c.URL
		case aux == "":
			aux = c.URL
		}
	}
	return primary, aux
}

// auxText is the text used to date a registration from its secondary QR.
// The URL itself may carry the cadena original, so it is kept when the
// fetch fails.
func (p *Pipeline) auxText(ctx context.Context, aux string) string {
	if aux == "" {
		return ""
	}
	text := aux
	if cadena, _, ok := sat.FindCadena(aux); ok {
		text = cadena
	}
	ext, err := p.verifier.Fetch(ctx, aux)
	if err != nil {
		zap.L().Debug("flow: auxiliary QR fetch failed", zap.String("url", aux), zap.Error(err))
		return text
	}
	return text + " " + ext.Fields.Blob
}
