package models

// Display options shared by the list and map views

// DefaultCategory is assigned to issues submitted without a category.
const DefaultCategory = "uncategorized"

// LetterDateFormat is the layout of the date printed on reports.
const LetterDateFormat = "02.01.2006"

var (
	// StatusLabels maps each status to its display name
	StatusLabels = map[Status]string{
		StatusUnreported:    "Unreported",
		StatusReportCreated: "Report created",
		StatusReportSent:    "Report sent",
	}

	// StatusColors maps each status to its map marker colour
	StatusColors = map[Status]string{
		StatusUnreported:    "#aaa",
		StatusReportCreated: "#1ea5ce",
		StatusReportSent:    "#9a72ad",
	}

	// SupportedImageTypes lists the accepted upload extensions
	SupportedImageTypes = []string{"jpg", "jpeg", "png"}
)

// Label returns the display name of the status.
func (s Status) Label() string {
	if l, ok := StatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Color returns the map marker colour of the status.
func (s Status) Color() string {
	if c, ok := StatusColors[s]; ok {
		return c
	}
	return StatusColors[StatusUnreported]
}
