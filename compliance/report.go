package compliance

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"energylink/models"
)

// Field is one templated value. Name is the key in ReportData.Values and the
// element or column name in the rendered output.
type Field struct {
	Name    string `yaml:"name"`
	Numeric bool   `yaml:"numeric"`
}

// Template declares how a regulation's report is rendered.
type Template struct {
	RootElement string              `yaml:"root_element"`
	Format      models.ReportFormat `yaml:"format"`
	Header      bool                `yaml:"header"`
	Fields      []Field             `yaml:"fields"`
}

// DefaultTemplates returns the built-in template for every regulation.
func DefaultTemplates() map[string]Template {
	return map[string]Template{
		RegulationCFTC: {
			RootElement: "CFTCLargeTraderReport",
			Format:      models.FormatXML,
			Fields: []Field{
				{Name: "reportId"},
				{Name: "reportingEntity"},
				{Name: "reportingDate"},
				{Name: "positionCount", Numeric: true},
				{Name: "totalLongPositions", Numeric: true},
				{Name: "totalShortPositions", Numeric: true},
			},
		},
		RegulationMAS: {
			RootElement: "MASTradeReport",
			Format:      models.FormatCSV,
			Header:      true,
			Fields: []Field{
				{Name: "reportId"},
				{Name: "institutionLicense"},
				{Name: "reportingDate"},
				{Name: "tradeCount", Numeric: true},
				{Name: "totalNotional", Numeric: true},
			},
		},
	}
}

// GenerateReport renders data with tmpl. It is pure: the same input always
// yields the same content and nothing outside the arguments is read.
func GenerateReport(data ReportData, regulation string, tmpl Template) (string, error) {
	if len(tmpl.Fields) == 0 {
		return "", fmt.Errorf("template for %s declares no fields", regulation)
	}
	values := data.Values()

	switch tmpl.Format {
	case models.FormatXML:
		return renderXML(values, regulation, tmpl)
	case models.FormatCSV:
		return renderCSV(values, tmpl)
	default:
		return "", fmt.Errorf("unsupported report format %q for %s", tmpl.Format, regulation)
	}
}

func renderXML(values map[string]string, regulation string, tmpl Template) (string, error) {
	root := tmpl.RootElement
	if root == "" {
		root = regulation + "Report"
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	start := xml.StartElement{Name: xml.Name{Local: root}}
	if err := enc.EncodeToken(start); err != nil {
		return "", fmt.Errorf("encode %s: %w", root, err)
	}
	for _, f := range tmpl.Fields {
		if err := enc.EncodeElement(values[f.Name], xml.StartElement{Name: xml.Name{Local: f.Name}}); err != nil {
			return "", fmt.Errorf("encode %s.%s: %w", root, f.Name, err)
		}
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return "", fmt.Errorf("encode %s: %w", root, err)
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

func renderCSV(values map[string]string, tmpl Template) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if tmpl.Header {
		header := make([]string, len(tmpl.Fields))
		for i, f := range tmpl.Fields {
			header[i] = f.Name
		}
		if err := w.Write(header); err != nil {
			return "", err
		}
	}
	row := make([]string, len(tmpl.Fields))
	for i, f := range tmpl.Fields {
		row[i] = values[f.Name]
	}
	if err := w.Write(row); err != nil {
		return "", err
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ParseXMLFields reads back the child elements of a rendered XML report.
func ParseXMLFields(content string) (root string, fields map[string]string, err error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	fields = make(map[string]string)
	depth := 0
	var current string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				root = t.Name.Local
			} else if depth == 2 {
				current = t.Name.Local
				fields[current] = ""
			}
		case xml.CharData:
			if depth == 2 {
				fields[current] += string(t)
			}
		case xml.EndElement:
			depth--
		}
	}
	return root, fields, nil
}

// ReportFilename is <REG>_<reportId>_<yyyymmdd>.<ext>.
func ReportFilename(regulation, reportID string, format models.ReportFormat, date time.Time) string {
	return fmt.Sprintf("%s_%s_%s.%s", regulation, reportID, date.UTC().Format("20060102"), strings.ToLower(string(format)))
}
