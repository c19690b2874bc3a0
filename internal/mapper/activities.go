package mapper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/supplier-verify/internal/anchor"
	"github.com/sells-group/supplier-verify/internal/model"
)

var (
	reActivitiesSection = regexp.MustCompile(`(?is)Actividad(?:es)?\s+Econ[oó]micas?\s*:?(.*?)(?:Reg[ií]men(?:es)?\s*:|Obligaci[oó]n(?:es)?\s*:|$)`)
	reActivityRow       = regexp.MustCompile(`(?:^|\s)(\d{1,2})\s+(.+?)\s+(\d{1,3})\s+(\d{1,2}/\d{1,2}/\d{2,4})\b(?:\s+(\d{1,2}/\d{1,2}/\d{2,4})\b)?`)
)

// ParseActivities reads the "Actividades Económicas" table of a registration:
// rows of order, description, percentage, start date and optional end date.
func ParseActivities(text string) []model.EconomicActivity {
	sm := reActivitiesSection.FindStringSubmatch(anchor.Sanitize(text))
	if sm == nil {
		return nil
	}
	block := strings.Join(strings.Fields(sm[1]), " ")

	var out []model.EconomicActivity
	for _, row := range reActivityRow.FindAllStringSubmatch(block, -1) {
		order, _ := strconv.Atoi(row[1])
		pct, _ := strconv.Atoi(row[3])
		out = append(out, model.EconomicActivity{
			Order:       order,
			Description: truncate(anchor.CutAtLabel(row[2]), 180),
			Percentage:  pct,
			StartDate:   anchor.ParseDatePtr(row[4]),
			EndDate:     anchor.ParseDatePtr(row[5]),
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
