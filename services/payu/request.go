package payu

// PaymentRequest is the form the browser auto-posts to the hosted payment page
type PaymentRequest struct {
	Key             string
	TxnID           string
	Amount          string
	ProductInfo     string
	FirstName       string
	Email           string
	Phone           string
	SURL            string
	FURL            string
	ServiceProvider string
	UDF             [5]string
	Hash            string
}

// Sign computes and stores the request hash
func (r *PaymentRequest) Sign(salt string) {
	r.Hash = RequestHash(r.Key, r.TxnID, r.Amount, r.ProductInfo, r.FirstName, r.Email, r.UDF, salt)
}

// Fields returns the form fields in PayU's naming
func (r *PaymentRequest) Fields() map[string]string {
	return map[string]string{
		"key":              r.Key,
		"txnid":            r.TxnID,
		"amount":           r.Amount,
		"productinfo":      r.ProductInfo,
		"firstname":        r.FirstName,
		"email":            r.Email,
		"phone":            r.Phone,
		"surl":             r.SURL,
		"furl":             r.FURL,
		"service_provider": r.ServiceProvider,
		"udf1":             r.UDF[0],
		"udf2":             r.UDF[1],
		"udf3":             r.UDF[2],
		"udf4":             r.UDF[3],
		"udf5":             r.UDF[4],
		"hash":             r.Hash,
	}
}
