// Package models holds the gorm row types of the billing schema. Domain
// types never carry gorm tags; each model converts with ToDomain/FromDomain.
//
// Money is stored as an amount column plus a currency column. Dates without
// a time of day (due dates, paid dates) are stored as UTC midnight.
// Rows of billing_event_histories are write-once: hooks here and a trigger
// in the postgres migrations refuse updates to frozen columns and deletes.
package models
