// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When users encounter errors, they can quote the error code
// to support staff for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Encoding Errors (ENC001-ENC099)
//
//	ENC001 - Unknown encoding: The requested encoding name is not supported
//	         Action: Use one of cp1252, iso-8859-1, cp850, cp437 or utf-8
//	         Patterns: "unknown encoding"
//
//	ENC002 - Decode failure: A record could not be decoded with the chosen encoding
//	         Action: Re-run with -encoding auto or pick the correct source codepage
//	         Patterns: "cannot decode byte"
//
//	ENC003 - Low confidence: No candidate encoding validated against the data
//	         Action: Spot-check umlauts in the output and set the encoding explicitly
//	         Patterns: "no candidate encoding"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Not found: The input file does not exist
//	          Action: Check the path and try again
//	          Patterns: "no such file"
//
//	FILE002 - Not a DBF: The file does not have a .dbf extension
//	          Action: Select a dBASE table file
//	          Patterns: "not a dbf file"
//
//	FILE003 - File too large: File exceeds the upload size limit
//	          Action: Convert the file locally with the command line tool
//	          Patterns: "file too large", "request body too large"
//
//	FILE004 - No file: No file was selected
//	          Action: Please select a DBF file to upload
//	          Patterns: "no file provided"
//
// # DBF Structure Errors (DBF001-DBF099)
//
//	DBF001 - Invalid header: The file header is not a valid dBASE header
//	         Action: The file may be truncated or not a DBF table at all
//	         Patterns: "invalid table header"
//
//	DBF002 - Record error: A record could not be parsed
//	         Action: The record is skipped; check the conversion summary
//	         Patterns: "dbf: record"
//
//	DBF003 - Bad delimiter: The CSV delimiter is not usable
//	         Action: Pick a printable delimiter other than the quote character
//	         Patterns: "delimiter must be"
//
// # Output Errors (OUT001-OUT099)
//
//	OUT001 - Write failure: The destination could not be written
//	         Action: Check free disk space and directory permissions
//	         Patterns: "writing destination"
//
// # Session Errors (UPL001-UPL099)
//
//	UPL001 - Session expired: Upload session not found
//	         Action: The upload may have expired. Please upload the file again
//	         Patterns: "session not found"
//
//	UPL002 - Request cancelled: Request was cancelled
//	         Action: Please try again
//	         Patterns: "context canceled"
//
//	UPL003 - Request timeout: Request timed out
//	         Action: Try a smaller file or check your connection
//	         Patterns: "context deadline exceeded", "timeout"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. Check the associated patterns to understand what triggered it
//  3. Review the suggested action to guide the user
//  4. If ERR000, check application logs for the original technical error

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. The first matching pattern wins, so order matters: more
// specific patterns come before general ones.
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the reference at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Encoding Errors (ENC001-ENC003)
	// =========================================================================
	{
		pattern: "unknown encoding",
		msg: UserMessage{
			Message: "The requested encoding name is not supported",
			Action:  "Use one of cp1252, iso-8859-1, cp850, cp437 or utf-8",
			Code:    "ENC001",
		},
	},
	{
		pattern: "cannot decode byte",
		msg: UserMessage{
			Message: "A record could not be decoded with the chosen encoding",
			Action:  "Re-run with automatic detection or pick the correct source codepage",
			Code:    "ENC002",
		},
	},
	{
		pattern: "no candidate encoding",
		msg: UserMessage{
			Message: "No candidate encoding validated against the data",
			Action:  "Spot-check umlauts in the output and set the encoding explicitly",
			Code:    "ENC003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE004)
	// =========================================================================
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "The input file does not exist",
			Action:  "Check the path and try again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "not a dbf file",
		msg: UserMessage{
			Message: "The file does not have a .dbf extension",
			Action:  "Select a dBASE table file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the upload size limit",
			Action:  "Convert the file locally with the command line tool",
			Code:    "FILE003",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the upload size limit",
			Action:  "Convert the file locally with the command line tool",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a DBF file to upload",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// DBF Structure Errors (DBF001-DBF003)
	// =========================================================================
	{
		pattern: "invalid table header",
		msg: UserMessage{
			Message: "The file is not a valid dBASE table",
			Action:  "The file may be truncated or not a DBF table at all",
			Code:    "DBF001",
		},
	},
	{
		pattern: "dbf: record",
		msg: UserMessage{
			Message: "A record could not be parsed",
			Action:  "The record is skipped; check the conversion summary",
			Code:    "DBF002",
		},
	},
	{
		pattern: "delimiter must be",
		msg: UserMessage{
			Message: "The CSV delimiter is not usable",
			Action:  "Pick a printable delimiter other than the quote character",
			Code:    "DBF003",
		},
	},

	// =========================================================================
	// Output Errors (OUT001)
	// =========================================================================
	{
		pattern: "writing destination",
		msg: UserMessage{
			Message: "The destination could not be written",
			Action:  "Check free disk space and directory permissions",
			Code:    "OUT001",
		},
	},

	// =========================================================================
	// Session Errors (UPL001-UPL003)
	// =========================================================================
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Upload session not found",
			Action:  "The upload may have expired. Please upload the file again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the original technical
// error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be
// shown to users. Returns true if the error matches a specific pattern
// (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}
