package payu

import "strings"

// Gateway status values as posted in callbacks and returned by verify
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusPending  = "pending"
	StatusNotFound = "not_found"
)

// CallbackPayload is the form PayU posts to surl or furl
type CallbackPayload struct {
	MihPayID          string `form:"mihpayid" json:"mihpayid"`
	Mode              string `form:"mode" json:"mode"`
	Status            string `form:"status" json:"status"`
	UnmappedStatus    string `form:"unmappedstatus" json:"unmappedstatus"`
	Key               string `form:"key" json:"key"`
	TxnID             string `form:"txnid" json:"txnid"`
	Amount            string `form:"amount" json:"amount"`
	AdditionalCharges string `form:"additionalCharges" json:"additionalCharges,omitempty"`
	ProductInfo       string `form:"productinfo" json:"productinfo"`
	FirstName         string `form:"firstname" json:"firstname"`
	Email             string `form:"email" json:"email"`
	Phone             string `form:"phone" json:"phone"`
	UDF1              string `form:"udf1" json:"udf1"`
	UDF2              string `form:"udf2" json:"udf2"`
	UDF3              string `form:"udf3" json:"udf3"`
	UDF4              string `form:"udf4" json:"udf4"`
	UDF5              string `form:"udf5" json:"udf5"`
	Hash              string `form:"hash" json:"-"`
	Field9            string `form:"field9" json:"field9"`
	ErrorCode         string `form:"error" json:"error"`
	ErrorMessage      string `form:"error_Message" json:"error_Message"`
	BankRefNum        string `form:"bank_ref_num" json:"bank_ref_num"`
	BankCode          string `form:"bankcode" json:"bankcode"`
	PGType            string `form:"PG_TYPE" json:"PG_TYPE"`
	AddedOn           string `form:"addedon" json:"addedon"`
}

// IsSuccess reports whether the gateway declared the payment successful
func (p *CallbackPayload) IsSuccess() bool {
	return strings.EqualFold(strings.TrimSpace(p.Status), StatusSuccess)
}

// FailureReason picks the most specific reason the gateway gave
func (p *CallbackPayload) FailureReason() string {
	switch {
	case p.ErrorMessage != "" && !strings.EqualFold(p.ErrorMessage, "No Error"):
		return p.ErrorMessage
	case p.Field9 != "":
		return p.Field9
	case p.Status != "":
		return "Payment " + p.Status
	default:
		return "Payment failed"
	}
}

// Fields returns the posted fields without the hash, for storage
func (p *CallbackPayload) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"mihpayid":       p.MihPayID,
		"mode":           p.Mode,
		"status":         p.Status,
		"unmappedstatus": p.UnmappedStatus,
		"txnid":          p.TxnID,
		"amount":         p.Amount,
		"productinfo":    p.ProductInfo,
		"firstname":      p.FirstName,
		"email":          p.Email,
		"phone":          p.Phone,
		"udf1":           p.UDF1,
		"udf2":           p.UDF2,
		"udf3":           p.UDF3,
		"udf4":           p.UDF4,
		"udf5":           p.UDF5,
		"field9":         p.Field9,
		"error":          p.ErrorCode,
		"error_Message":  p.ErrorMessage,
		"bank_ref_num":   p.BankRefNum,
		"bankcode":       p.BankCode,
		"PG_TYPE":        p.PGType,
		"addedon":        p.AddedOn,
	}
	if p.AdditionalCharges != "" {
		fields["additionalCharges"] = p.AdditionalCharges
	}
	return fields
}

// NormalizeStatus maps the gateway's status vocabulary onto the four values callers switch on
func NormalizeStatus(raw string) string {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "success", "captured":
		return StatusSuccess
	case "failure", "failed", "dropped", "bounced", "usercancelled", "cancelled":
		return StatusFailure
	case "pending", "in progress", "initiated", "auth":
		return StatusPending
	case "not found", "not_found", "":
		return StatusNotFound
	default:
		return s
	}
}
