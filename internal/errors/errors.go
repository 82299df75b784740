// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ValidationError reports a malformed request, usually a bad rule tree.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid segment rules: " + e.Reason
	}
	return fmt.Sprintf("invalid segment rules at %s: %s", e.Path, e.Reason)
}

func NewValidationError(path, reason string) error {
	return &ValidationError{Path: path, Reason: reason}
}

// SelectionError means the audience could not be resolved from storage.
type SelectionError struct {
	CampaignID int
	Err        error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selecting audience for campaign %d: %v", e.CampaignID, e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

func NewSelectionError(campaignID int, err error) error {
	return &SelectionError{CampaignID: campaignID, Err: err}
}

// ErrCampaignNotDeliverable is returned when a campaign that is not draft or
// scheduled is asked to deliver.
type ErrCampaignNotDeliverable struct {
	CampaignID int
	Status     string
}

func (e *ErrCampaignNotDeliverable) Error() string {
	return fmt.Sprintf("campaign %d cannot be delivered in status: %s", e.CampaignID, e.Status)
}

func NewCampaignNotDeliverable(id int, status string) error {
	return &ErrCampaignNotDeliverable{CampaignID: id, Status: status}
}

// ErrCampaignConflict is returned when a campaign's state forbids an edit or delete.
type ErrCampaignConflict struct {
	CampaignID int
	Reason     string
}

func (e *ErrCampaignConflict) Error() string {
	return fmt.Sprintf("campaign %d: %s", e.CampaignID, e.Reason)
}

func NewCampaignConflict(id int, reason string) error {
	return &ErrCampaignConflict{CampaignID: id, Reason: reason}
}
