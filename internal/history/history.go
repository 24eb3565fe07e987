package history

import "time"

// Session is the audit record of one RMA session
type Session struct {
	ID         string     `json:"id"`
	RMA        string     `json:"rma"`
	Receiver   string     `json:"receiver"`
	EntryDate  string     `json:"entry_date"`
	AssignedTo string     `json:"assigned_to"`
	State      string     `json:"state"`
	Serials    int        `json:"serials"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Item is the audit record of one processed serial number
type Item struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"session_id"`
	RMA                string    `json:"rma"`
	Serial             string    `json:"serial"`
	ReturnType         string    `json:"return_type,omitempty"`
	PartNumber         string    `json:"part_number,omitempty"`
	SLA                string    `json:"sla,omitempty"`
	DateAlreadyEntered bool      `json:"date_already_entered"`
	Damaged            bool      `json:"damaged"`
	LedgerPath         string    `json:"ledger_path,omitempty"`
	FolderPath         string    `json:"folder_path,omitempty"`
	DamagedPath        string    `json:"damaged_path,omitempty"`
	Error              string    `json:"error,omitempty"`
	ProcessedAt        time.Time `json:"processed_at"`
}
