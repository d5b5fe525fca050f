// Package model defines the value types exchanged between storage, scanners
// and callers: references to stored records, relationship references and
// partition catalog entries.
package model
