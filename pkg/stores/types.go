package stores

import (
	"maps"
	"strings"
	"time"
)

// Report payload field keys. The order of KnownFields is the column order
// used by exports.
const (
	FieldTicket      = "ticket"
	FieldRequester   = "requester"
	FieldTechnician  = "technician"
	FieldCategory    = "category"
	FieldDepartment  = "department"
	FieldLocation    = "location"
	FieldPhone       = "phone"
	FieldEmail       = "email"
	FieldPriority    = "priority"
	FieldStatus      = "status"
	FieldReportedAt  = "reported_at"
	FieldStartedAt   = "started_at"
	FieldFinishedAt  = "finished_at"
	FieldDeviceType  = "device_type"
	FieldBrand       = "brand"
	FieldModel       = "model"
	FieldSerial      = "serial_number"
	FieldAssetTag    = "asset_tag"
	FieldHostname    = "hostname"
	FieldIPAddress   = "ip_address"
	FieldMACAddress  = "mac_address"
	FieldOS          = "operating_system"
	FieldOSVersion   = "os_version"
	FieldProcessor   = "processor"
	FieldMemory      = "memory"
	FieldStorage     = "storage"
	FieldMonitor     = "monitor"
	FieldPeripherals = "peripherals"
	FieldWarranty    = "warranty"

	FieldCheckPower       = "check_power"
	FieldCheckBoot        = "check_boot"
	FieldCheckNetwork     = "check_network"
	FieldCheckDisplay     = "check_display"
	FieldCheckKeyboard    = "check_keyboard"
	FieldCheckMouse       = "check_mouse"
	FieldCheckAudio       = "check_audio"
	FieldCheckUSB         = "check_usb"
	FieldCheckAntivirus   = "check_antivirus"
	FieldCheckUpdates     = "check_updates"
	FieldCheckBackup      = "check_backup"
	FieldCheckCleaning    = "check_cleaning"
	FieldCheckCables      = "check_cables"
	FieldCheckFans        = "check_fans"
	FieldCheckTemperature = "check_temperature"
	FieldCheckBattery     = "check_battery"
	FieldCheckPrinter     = "check_printer"
	FieldCheckSoftware    = "check_software"
	FieldCheckLicenses    = "check_licenses"
	FieldCheckAccounts    = "check_user_accounts"

	FieldProblem         = "problem_description"
	FieldDiagnosis       = "diagnosis"
	FieldWorkDescription = "work_description"
	FieldPartsReplaced   = "parts_replaced"
	FieldRecommendations = "recommendations"
	FieldObservations    = "observations"
	FieldTimeSpent       = "time_spent"
	FieldCost            = "cost"
	FieldSatisfaction    = "satisfaction"

	FieldTechnicianSignature = "technician_signature"
	FieldRequesterSignature  = "requester_signature"
)

// KnownFields lists every payload field in export column order.
var KnownFields = []string{
	FieldTicket, FieldRequester, FieldTechnician, FieldCategory, FieldDepartment,
	FieldLocation, FieldPhone, FieldEmail, FieldPriority, FieldStatus,
	FieldReportedAt, FieldStartedAt, FieldFinishedAt,
	FieldDeviceType, FieldBrand, FieldModel, FieldSerial, FieldAssetTag,
	FieldHostname, FieldIPAddress, FieldMACAddress, FieldOS, FieldOSVersion,
	FieldProcessor, FieldMemory, FieldStorage, FieldMonitor, FieldPeripherals, FieldWarranty,
	FieldCheckPower, FieldCheckBoot, FieldCheckNetwork, FieldCheckDisplay, FieldCheckKeyboard,
	FieldCheckMouse, FieldCheckAudio, FieldCheckUSB, FieldCheckAntivirus, FieldCheckUpdates,
	FieldCheckBackup, FieldCheckCleaning, FieldCheckCables, FieldCheckFans, FieldCheckTemperature,
	FieldCheckBattery, FieldCheckPrinter, FieldCheckSoftware, FieldCheckLicenses, FieldCheckAccounts,
	FieldProblem, FieldDiagnosis, FieldWorkDescription, FieldPartsReplaced, FieldRecommendations,
	FieldObservations, FieldTimeSpent, FieldCost, FieldSatisfaction,
	FieldTechnicianSignature, FieldRequesterSignature,
}

// KeyFields are the fields that make a closed form worth keeping as a draft.
var KeyFields = []string{FieldTicket, FieldRequester, FieldTechnician, FieldCategory}

// Payload is the flat field map of a report. Missing keys and empty values
// are equivalent.
type Payload map[string]string

// Get returns the value of key, or "".
func (p Payload) Get(key string) string {
	return p[key]
}

// Clone returns an independent copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return maps.Clone(p)
}

// HasKeyField reports whether any key field holds a non-blank value.
func (p Payload) HasKeyField() bool {
	for _, k := range KeyFields {
		if strings.TrimSpace(p[k]) != "" {
			return true
		}
	}
	return false
}

// NonEmpty returns the number of fields with a non-blank value.
func (p Payload) NonEmpty() int {
	n := 0
	for _, v := range p {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// ReportRecord is one maintenance report.
type ReportRecord struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// Project is the partition key. Empty means unscoped. It is set at
	// creation and carried unchanged through edits.
	Project string `json:"project,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`

	Fields Payload `json:"fields"`
}

// Field returns a payload value.
func (r ReportRecord) Field(key string) string {
	return r.Fields.Get(key)
}

// Clone returns a deep copy of the record.
func (r ReportRecord) Clone() ReportRecord {
	r.Fields = r.Fields.Clone()
	return r
}

// CloneRecords deep-copies a slice of records.
func CloneRecords(in []ReportRecord) []ReportRecord {
	out := make([]ReportRecord, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// SaveResult describes a successful collection write.
type SaveResult struct {
	// Count is the number of records in the written file.
	Count int

	// Degraded is set when the file was replaced in place rather than
	// atomically renamed.
	Degraded bool
}

// Draft is a recoverable snapshot of unsaved form input.
type Draft struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
	Fields  Payload   `json:"fields"`
}

// DraftInfo is the listing entry for one draft.
type DraftInfo struct {
	Token      string    `json:"token"`
	Path       string    `json:"path"`
	SavedAt    time.Time `json:"saved_at"`
	Ticket     string    `json:"ticket,omitempty"`
	Requester  string    `json:"requester,omitempty"`
	FieldCount int       `json:"field_count"`
}

// ExportStatus is the state of an export run.
type ExportStatus string

const (
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusPartial   ExportStatus = "partial"
	ExportStatusFailed    ExportStatus = "failed"
	ExportStatusCancelled ExportStatus = "cancelled"
)

// ExportRun is the journal entry of one export batch.
type ExportRun struct {
	ID          string       `json:"id"`
	Format      string       `json:"format"`
	Destination string       `json:"destination"`
	Status      ExportStatus `json:"status"`
	Total       int          `json:"total"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       *string      `json:"error,omitempty"`
}

// ExportItem is the outcome of exporting one record in a run.
type ExportItem struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	RecordID   string    `json:"record_id"`
	OutputPath *string   `json:"output_path,omitempty"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry represents an audit trail entry.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`              // e.g. "record.added", "partition.deleted"
	Actor     string    `json:"actor"`               // user or system identifier
	Project   *string   `json:"project,omitempty"`   // active project
	TargetID  *string   `json:"target_id,omitempty"` // record id or draft token
	Details   *string   `json:"details,omitempty"`   // JSON blob
	Timestamp time.Time `json:"timestamp"`
}
