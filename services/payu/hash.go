package payu

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const CommandVerifyPayment = "verify_payment"

func sha512Hex(parts ...string) string {
	sum := sha512.Sum512([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// RequestHash signs an outbound payment request:
// key|txnid|amount|productinfo|firstname|email|udf1|udf2|udf3|udf4|udf5||||||salt
func RequestHash(key, txnid, amount, productInfo, firstName, email string, udf [5]string, salt string) string {
	return sha512Hex(
		key, txnid, amount, productInfo, firstName, email,
		udf[0], udf[1], udf[2], udf[3], udf[4],
		"", "", "", "", "",
		salt,
	)
}

// ResponseHash recomputes the signature PayU attaches to a callback:
// salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key
// Callbacks that carry additional charges prefix the string with that value.
func ResponseHash(p *CallbackPayload, key, salt string) string {
	parts := []string{
		salt, p.Status,
		"", "", "", "", "",
		p.UDF5, p.UDF4, p.UDF3, p.UDF2, p.UDF1,
		p.Email, p.FirstName, p.ProductInfo, p.Amount, p.TxnID, key,
	}
	if p.AdditionalCharges != "" {
		parts = append([]string{p.AdditionalCharges}, parts...)
	}
	return sha512Hex(parts...)
}

// VerifyResponseHash compares the posted hash with the recomputed one byte for byte
func VerifyResponseHash(p *CallbackPayload, key, salt string) bool {
	if p.Hash == "" {
		return false
	}
	expected := ResponseHash(p, key, salt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(p.Hash)) == 1
}

// CommandHash signs a merchant postservice command: key|command|var1|salt
func CommandHash(key, command, var1, salt string) string {
	return sha512Hex(key, command, var1, salt)
}
