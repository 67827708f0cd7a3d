package wizard

import "strings"

// NameInput 生成刊登名称所需的选择项
type NameInput struct {
	Category        Category
	Intent          Intent
	TransactionType TransactionType
	EmploymentType  EmploymentType
	Details         Details
}

func (s State) NameInput() NameInput {
	in := NameInput{
		Category:        s.Category,
		Intent:          s.Intent,
		TransactionType: s.TransactionType,
		EmploymentType:  s.EmploymentType,
	}
	if s.Details != nil {
		in.Details = *s.Details
	}
	return in
}

type propertyKey struct {
	intent Intent
	tx     TransactionType
}

var propertyPrefix = map[propertyKey]string{
	{Offer, Sale}:  "Πώληση",
	{Offer, Rent}:  "Ενοικίαση",
	{Search, Sale}: "Αγορά",
	{Search, Rent}: "Μίσθωση",
}

// 物业类型使用属格，接在前缀之后
var propertyTypeGenitive = map[string]string{
	"apartment":  "Διαμερίσματος",
	"house":      "Μονοκατοικίας",
	"maisonette": "Μεζονέτας",
	"studio":     "Γκαρσονιέρας",
	"land":       "Οικοπέδου",
	"office":     "Γραφείου",
	"store":      "Καταστήματος",
	"warehouse":  "Αποθήκης",
	"parking":    "Θέσης Στάθμευσης",
	"building":   "Κτιρίου",
}

var propertyIntentOnly = map[Intent]string{
	Offer:  "Προσφορά Ακινήτου",
	Search: "Αναζήτηση Ακινήτου",
}

var jobIntent = map[Intent]string{
	Offer:  "Προσφορά",
	Search: "Αναζήτηση",
}

var employmentGenitive = map[EmploymentType]string{
	FullTime:   "Πλήρους Απασχόλησης",
	PartTime:   "Μερικής Απασχόλησης",
	Freelance:  "Ελεύθερου Επαγγελματία",
	Internship: "Πρακτικής Άσκησης",
	Seasonal:   "Εποχικής Απασχόλησης",
}

const (
	fallbackListing  = "Νέα Καταχώριση"
	fallbackProperty = "Ακίνητο"
	fallbackJob      = "Εργασία"
	genericProperty  = "Ακινήτου"
	genericJob       = "Εργασίας"
	positionPrefix   = "Θέση"
)

// GenerateName 确定性、全函数；没有任何可区分字段时返回兜底文本
func GenerateName(in NameInput) string {
	var base string
	switch in.Category {
	case Property:
		base = propertyName(in)
	case Job:
		base = jobName(in)
	default:
		return fallbackListing
	}
	if t := strings.TrimSpace(in.Details.Title); t != "" {
		return base + ": " + t
	}
	return base
}

func propertyName(in NameInput) string {
	prefix, ok := propertyPrefix[propertyKey{in.Intent, in.TransactionType}]
	if !ok {
		if s, ok := propertyIntentOnly[in.Intent]; ok {
			return s
		}
		return fallbackProperty
	}
	kind := strings.ToLower(strings.TrimSpace(in.Details.PropertyType))
	if g, ok := propertyTypeGenitive[kind]; ok {
		return prefix + " " + g
	}
	return prefix + " " + genericProperty
}

func jobName(in NameInput) string {
	intent, hasIntent := jobIntent[in.Intent]
	emp, hasEmp := employmentGenitive[in.EmploymentType]
	switch {
	case hasIntent && hasEmp:
		return intent + " " + emp
	case hasIntent:
		return intent + " " + genericJob
	case hasEmp:
		return positionPrefix + " " + emp
	}
	return fallbackJob
}
