package enum

type DecryptStatus string

const (
	DecryptSuccess          DecryptStatus = "success"
	DecryptLockedNoPrompt   DecryptStatus = "locked_no_prompt"
	DecryptLockedPrompted   DecryptStatus = "locked_prompted"
	DecryptNoKeysConfigured DecryptStatus = "no_keys_configured"
	DecryptAborted          DecryptStatus = "aborted"
	DecryptFailed           DecryptStatus = "failed"
)

func (t DecryptStatus) String() string {
	return string(t)
}

type DecryptFailReason string

const (
	DecryptReasonNoKeys         DecryptFailReason = "no_keys"
	DecryptReasonBadPassphrase  DecryptFailReason = "bad_passphrase"
	DecryptReasonMalformedArmor DecryptFailReason = "malformed_armor"
	DecryptReasonNoMatchingKey  DecryptFailReason = "no_matching_key"
	DecryptReasonInternal       DecryptFailReason = "internal"
)

func (t DecryptFailReason) String() string {
	return string(t)
}
