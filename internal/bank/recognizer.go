package bank

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/model"
	"github.com/sells-group/supplier-verify/internal/ocr"
)

// Statement is what was recognized from a bank statement PDF.
type Statement struct {
	Bank   string   `json:"bank"`
	CLABEs []string `json:"clabes,omitempty"`
	Text   string   `json:"-"`
}

// Verification reports how the declared account data was found in a
// statement.
type Verification struct {
	Bank         string   `json:"bank"`
	CLABE        string   `json:"clabe,omitempty"`
	CLABEBank    string   `json:"clabe_bank,omitempty"`
	CLABEMatch   Match    `json:"clabe_match,omitempty"`
	AccountMatch Match    `json:"account_match,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Recognizer reads bank statements through an external text recognizer.
type Recognizer struct {
	text ocr.Extractor
}

// NewRecognizer creates a Recognizer.
func NewRecognizer(text ocr.Extractor) *Recognizer {
	return &Recognizer{text: text}
}

// Recognize extracts the statement text and the bank data found in it.
func (r *Recognizer) Recognize(ctx context.Context, pdfPath string) (*Statement, error) {
	text, err := r.text.ExtractText(ctx, pdfPath)
	if err != nil {
		return nil, model.WrapError(model.KindParseFailed, eris.Wrap(err, "bank: recognize statement"),
			"bank statement could not be read")
	}
	if !ocr.Usable(text) {
		return nil, model.NewError(model.KindParseFailed, "bank statement has no readable text")
	}

	st := &Statement{
		Bank:   BankName(text),
		CLABEs: FindCLABEs(text),
		Text:   text,
	}
	if st.Bank == UnknownBank && len(st.CLABEs) > 0 {
		if b := BankFromCLABE(st.CLABEs[0]); b != "" {
			st.Bank = b
		}
	}
	zap.L().Debug("bank: statement recognized",
		zap.String("path", pdfPath),
		zap.String("bank", st.Bank),
		zap.Int("clabes", len(st.CLABEs)))
	return st, nil
}

// Verify checks the declared account and CLABE against st. Declared values
// must be well formed and present; a partial match passes with a warning.
// With nothing declared, a CLABE printed on the statement is enough.
func Verify(st *Statement, account, clabe string) (*Verification, error) {
	v := &Verification{Bank: st.Bank}

	if clabe == "" && account == "" {
		if len(st.CLABEs) == 0 {
			return v, model.NewError(model.KindBankMismatch, "no CLABE found in the bank statement")
		}
		v.CLABE = st.CLABEs[0]
		v.CLABEBank = BankFromCLABE(v.CLABE)
		v.CLABEMatch = MatchFull
		return v, nil
	}

	if clabe != "" {
		if !ValidCLABE(clabe) {
			return v, model.NewError(model.KindBankMismatch, "CLABE is not valid").
				WithDetail("clabe", clabe)
		}
		v.CLABE = Digits(clabe)
		v.CLABEBank = BankFromCLABE(v.CLABE)
		v.CLABEMatch = CheckCLABE(st.Text, v.CLABE)
		switch v.CLABEMatch {
		case MatchNone:
			return v, model.NewError(model.KindBankMismatch, "CLABE does not appear in the bank statement").
				WithDetail("clabe", v.CLABE)
		case MatchPartial:
			v.Warnings = append(v.Warnings, "only the first digits of the CLABE appear in the statement")
		}
	}

	if account != "" {
		if len(Digits(account)) < MinAccountDigits {
			return v, model.Errorf(model.KindBankMismatch, "account number must have at least %d digits", MinAccountDigits)
		}
		v.AccountMatch = CheckAccount(st.Text, account)
		switch v.AccountMatch {
		case MatchNone:
			return v, model.NewError(model.KindBankMismatch, "account number does not appear in the bank statement")
		case MatchPartial:
			v.Warnings = append(v.Warnings, "only the last digits of the account appear in the statement")
		}
	}

	if v.CLABEBank != "" && st.Bank != UnknownBank && !sameBank(v.CLABEBank, st.Bank) {
		v.Warnings = append(v.Warnings, "CLABE bank "+v.CLABEBank+" differs from statement bank "+st.Bank)
	}
	return v, nil
}

// aliases groups brand names used for the same institution.
var aliases = map[string]string{
	"BBVA MEXICO": "BBVA",
	"BANCOMER":    "BBVA",
	"CITIBANAMEX": "BANAMEX",
	"CITIBANK":    "BANAMEX",
}

func sameBank(a, b string) bool {
	if x, ok := aliases[a]; ok {
		a = x
	}
	if x, ok := aliases[b]; ok {
		b = x
	}
	return a == b
}
