package payu

import "time"

const (
	TestPaymentURL = "https://test.payu.in/_payment"
	LivePaymentURL = "https://secure.payu.in/_payment"
	TestVerifyURL  = "https://test.payu.in/merchant/postservice.php?form=2"
	LiveVerifyURL  = "https://info.payu.in/merchant/postservice.php?form=2"

	DefaultServiceProvider = "payu_paisa"
	DefaultTimeout         = 15 * time.Second
)

type Config struct {
	MerchantKey     string
	MerchantSalt    string
	PaymentURL      string
	VerifyURL       string
	ServiceProvider string
	Timeout         time.Duration
}

// DefaultURLs returns the hosted page and verify endpoints for mode ("test" or "live")
func DefaultURLs(mode string) (paymentURL, verifyURL string) {
	if mode == "live" {
		return LivePaymentURL, LiveVerifyURL
	}
	return TestPaymentURL, TestVerifyURL
}

// NewConfig fills unset endpoints and limits from mode
func NewConfig(key, salt, mode, paymentURL, verifyURL, serviceProvider string, timeout time.Duration) Config {
	defPayment, defVerify := DefaultURLs(mode)
	if paymentURL == "" {
		paymentURL = defPayment
	}
	if verifyURL == "" {
		verifyURL = defVerify
	}
	if serviceProvider == "" {
		serviceProvider = DefaultServiceProvider
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Config{
		MerchantKey:     key,
		MerchantSalt:    salt,
		PaymentURL:      paymentURL,
		VerifyURL:       verifyURL,
		ServiceProvider: serviceProvider,
		Timeout:         timeout,
	}
}
