// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package firmware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.chromium.org/fwmode/errors"
)

// Crossystem params read to determine the device state.
const (
	paramMainfwType     = "mainfw_type"
	paramMainfwAct      = "mainfw_act"
	paramRecoveryReason = "recovery_reason"
)

// Recovery reason codes reported by crossystem's recovery_reason.
const (
	RecoveryNotRequested = 0
	RecoveryLegacy       = 1
	RecoveryROManual     = 2
	RecoveryROInvalidRW  = 3
	RecoveryROS3Resume   = 4
	RecoveryROTPMError   = 5
	RecoveryROSharedData = 6
	RecoveryROTestS3     = 7
	RecoveryROTestLFS    = 8
	RecoveryROTestLF     = 9
	RecoveryRWNotDone    = 16
	RecoveryRWNoRONormal = 29
	RecoveryROFirmware   = 32
	RecoveryROTPMReboot  = 33
	RecoveryRWDevScreen  = 65
	RecoveryRWNoOS       = 66
	RecoveryRWNoDisk     = 90
	RecoveryUSTest       = 193
)

var recoveryReasonNames = map[int]string{
	RecoveryNotRequested: "NOT_REQUESTED",
	RecoveryLegacy:       "LEGACY",
	RecoveryROManual:     "RO_MANUAL",
	RecoveryROInvalidRW:  "RO_INVALID_RW",
	RecoveryROS3Resume:   "RO_S3_RESUME",
	RecoveryROTPMError:   "RO_TPM_ERROR",
	RecoveryROSharedData: "RO_SHARED_DATA",
	RecoveryROTestS3:     "RO_TEST_S3",
	RecoveryROTestLFS:    "RO_TEST_LFS",
	RecoveryROTestLF:     "RO_TEST_LF",
	RecoveryRWNotDone:    "RW_NOT_DONE",
	17:                   "RW_DEV_MISMATCH",
	18:                   "RW_REC_MISMATCH",
	19:                   "RW_VERIFY_KEYBLOCK",
	20:                   "RW_KEY_ROLLBACK",
	21:                   "RW_DATA_KEY_PARSE",
	22:                   "RW_VERIFY_PREAMBLE",
	23:                   "RW_FW_ROLLBACK",
	24:                   "RW_HEADER_VALID",
	25:                   "RW_GET_FW_BODY",
	26:                   "RW_HASH_WRONG_SIZE",
	27:                   "RW_VERIFY_BODY",
	28:                   "RW_VALID",
	RecoveryRWNoRONormal: "RW_NO_RO_NORMAL",
	RecoveryROFirmware:   "RO_FIRMWARE",
	RecoveryROTPMReboot:  "RO_TPM_REBOOT",
	RecoveryRWDevScreen:  "RW_DEV_SCREEN",
	RecoveryRWNoOS:       "RW_NO_OS",
	RecoveryRWNoDisk:     "RW_NO_DISK",
	RecoveryUSTest:       "US_TEST",
}

// RecoveryReasonName returns a readable name of a recovery reason code,
// e.g. "2 (RO_MANUAL)".
func RecoveryReasonName(code int) string {
	if n, ok := recoveryReasonNames[code]; ok {
		return fmt.Sprintf("%d (%s)", code, n)
	}
	return strconv.Itoa(code)
}

var crossystemLineRe = regexp.MustCompile(`^([^ =]*) *= *(.*[^ ]) *# [^#]*$`)

// parseCrossystem converts the output of crossystem to a map. Duplicate
// params are an error, matching FAFT.
func parseCrossystem(out string) (map[string]string, error) {
	m := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kv := crossystemLineRe.FindStringSubmatch(line)
		if kv == nil {
			return nil, errors.Errorf("failed to parse crossystem line %q", line)
		}
		if v, ok := m[kv[1]]; ok {
			return nil, errors.Errorf("duplicate crossystem param %v, existing value %v, parsing line %q", kv[1], v, line)
		}
		m[kv[1]] = kv[2]
	}
	return m, nil
}

// parseMainfwType maps crossystem's mainfw_type to a boot mode. Types
// outside the known modes, such as "netboot", are BootModeUnknown.
func parseMainfwType(s string) BootMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return BootModeNormal
	case "developer":
		return BootModeDeveloper
	case "recovery":
		return BootModeRecovery
	}
	return BootModeUnknown
}

// stateFromCrossystem builds a device state from parsed crossystem params.
func stateFromCrossystem(m map[string]string) (*DeviceState, error) {
	mt, ok := m[paramMainfwType]
	if !ok {
		return nil, errors.Errorf("required param %q not found in crossystem output", paramMainfwType)
	}
	st := &DeviceState{BootMode: parseMainfwType(mt)}
	if v, ok := m[paramMainfwAct]; ok {
		st.FirmwareSlot = parseSlot(v)
	}
	if v, ok := m[paramRecoveryReason]; ok {
		r, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "bad %s %q", paramRecoveryReason, v)
		}
		st.RecoveryReason = r
	}
	return st, nil
}
