// utils/verifier.go
package utils

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
)

type VerificationResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"` // valid, invalid, disposable, unknown
	Details      string `json:"details"`
	IsBounceRisk bool   `json:"is_bounce_risk"`
	WHOIS        string `json:"whois,omitempty"`
}

var (
	disposableDomains = map[string]bool{
		"mailinator.com":    true,
		"guerrillamail.com": true,
		"10minutemail.com":  true,
		"temp-mail.org":     true,
		"throwaway.email":   true,
		"yopmail.com":       true,
		"sharklasers.com":   true,
		"trashmail.com":     true,
		"getnada.com":       true,
		"dispostable.com":   true,
	}

	// Common email typos
	commonTypos = map[string]string{
		"gmai.com":   "gmail.com",
		"gmal.com":   "gmail.com",
		"gmail.co":   "gmail.com",
		"yaho.com":   "yahoo.com",
		"hotmai.com": "hotmail.com",
		"outlok.com": "outlook.com",
	}

	// Domain to MX cache
	mxCache = struct {
		sync.RWMutex
		m map[string][]*net.MX
	}{m: make(map[string][]*net.MX)}
)

// VerifyLeadEmail vets a lead address before it is enrolled with any
// provider: syntax, typo, disposable-domain and MX checks. Returns nil when
// the address is deliverable enough to dispatch to.
func VerifyLeadEmail(email string) error {
	result := VetLeadEmail(email)
	if result.Status == "valid" {
		return nil
	}
	return fmt.Errorf("%s: %s", result.Status, result.Details)
}

// VetLeadEmail performs the full verification and returns the detailed
// result for the vetting endpoint
func VetLeadEmail(email string) *VerificationResult {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsBounceRisk: true,
	}

	// 1. Basic syntax validation using checkmail
	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = "invalid"
		result.Details = "Invalid email format: " + err.Error()
		return result
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		result.Status = "invalid"
		result.Details = "Invalid email format"
		return result
	}
	localPart, domain := parts[0], parts[1]

	// 2. Check for common typos
	if suggestedDomain, ok := commonTypos[domain]; ok {
		result.Status = "invalid"
		result.Details = fmt.Sprintf("Possible typo, did you mean %s@%s?", localPart, suggestedDomain)
		return result
	}

	// 3. Disposable email check
	if disposableDomains[domain] {
		result.Status = "disposable"
		result.Details = "Disposable email domain"
		return result
	}

	// 4. DNS/MX record check with checkmail
	if err := checkmail.ValidateHost(domain); err != nil {
		result.Status = "invalid"
		result.Details = "Domain validation failed: " + err.Error()
		return result
	}
	if mx, err := getMXRecords(domain); err != nil || len(mx) == 0 {
		result.Status = "invalid"
		result.Details = "No MX records for domain"
		return result
	}

	result.Status = "valid"
	result.Details = "Deliverable"
	result.IsBounceRisk = false

	// 5. WHOIS data when available; failures are not a vetting signal
	if whoisInfo, err := whois.Whois(domain); err == nil {
		result.WHOIS = truncateWhois(whoisInfo)
	}
	return result
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func getMXRecords(domain string) ([]*net.MX, error) {
	mxCache.RLock()
	if records, ok := mxCache.m[domain]; ok {
		mxCache.RUnlock()
		return records, nil
	}
	mxCache.RUnlock()

	records, err := net.LookupMX(domain)
	if err != nil {
		return nil, err
	}

	mxCache.Lock()
	mxCache.m[domain] = records
	mxCache.Unlock()
	return records, nil
}

func truncateWhois(info string) string {
	if len(info) > 2000 {
		return info[:2000]
	}
	return info
}
