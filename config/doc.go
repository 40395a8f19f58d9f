// Package config loads client configuration.
//
// A configuration file names the engine library, the client settings passed
// to createContext, and logging:
//
//	library: /usr/local/lib/libton_client.so
//	log:
//	  level: debug
//	client:
//	  network:
//	    endpoints: [https://mainnet.evercloud.dev]
//	    access_key: ${key}
//	  abi:
//	    message_expiration_timeout: 40000
//
// TON_LIBRARY, TON_ENDPOINTS (comma-separated), TON_ACCESS_KEY and
// TON_LOG_LEVEL override the corresponding file values.
package config
