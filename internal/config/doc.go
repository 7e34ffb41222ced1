// Package config loads nftctl configuration files.
//
// # Overview
//
// A config file describes how to run the interactive nft session and,
// optionally, a declarative plan of tables to apply. HCL is the primary
// format; JSON and YAML files with the same structure are accepted and
// chosen by extension.
//
// # Configuration Blocks
//
//   - session: nft binary, arguments, network namespace, timeouts and the
//     restart policy
//   - log: level and output format
//   - metrics: Prometheus listen address
//   - table: a table with its chains, sets and counters
//
// # Example
//
//	schema_version = "1.0"
//
//	session {
//	    timeout = "10s"
//	    retry {
//	        max_attempts = 3
//	    }
//	}
//
//	table "filter" {
//	    family         = "inet"
//	    flush_existing = true
//
//	    set "blocked" {
//	        type     = "ipv4_addr"
//	        flags    = ["interval"]
//	        elements = ["10.0.0.0/8"]
//	    }
//
//	    chain "input" {
//	        type     = "filter"
//	        hook     = "input"
//	        priority = "filter"
//	        policy   = "drop"
//	        rules = [
//	            "ct state established,related accept",
//	            "ip saddr @blocked drop",
//	        ]
//	    }
//	}
package config
