package client

import (
	"math/rand"
	"strconv"
)

const payloadChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generatePayload returns random letter+digit data of exactly sizeKB
// kilobytes, mirroring what a client application would push through the
// driver.
func generatePayload(sizeKB int) string {
	n := sizeKB * 1024
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = payloadChars[rand.Intn(len(payloadChars))]
	}
	return string(b)
}

var (
	referenceStatuses   = []string{"active", "inactive", "pending", "completed", "cancelled"}
	referenceCategories = []string{"electronics", "clothing", "food", "books", "toys", "sports", "home", "automotive"}
)

// referenceRow is one generated row for the reference table used by the
// query-performance helpers.
type referenceRow struct {
	Label    string
	Status   string
	Category string
	Price    float64
	Quantity int
	Payload  string
}

func generateReferenceRow(id int) referenceRow {
	return referenceRow{
		Label:    "item_" + strconv.Itoa(id),
		Status:   referenceStatuses[rand.Intn(len(referenceStatuses))],
		Category: referenceCategories[rand.Intn(len(referenceCategories))],
		Price:    1 + rand.Float64()*9998,
		Quantity: rand.Intn(10001),
		Payload:  generatePayload(1),
	}
}
