// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package version holds the release tag of the SDK.
package version

// Tag specifies the current release tag. It needs to be manually updated.
const Tag = "v0.4.0"
