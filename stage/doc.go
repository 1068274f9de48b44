// Package stage assembles a Debian binary package from a populated staging
// directory.
//
// A Builder is scoped to one staging directory and one build. It runs the
// phases strictly in order and stops at the first error:
//
//	GeneratePackageDescriptionFiles
//	  GenerateScripts      DEBIAN/preinst, postinst, prerm, postrm
//	  NormalizeStaging     ownership and modes of declared entries
//	  GenerateControlFile  DEBIAN/control (Installed-Size), DEBIAN/conffiles
//	BuildPackage           archive + package_filename sidecar
//
// Ownership changes, size measurement and archiving go through the
// OwnershipSetter, TreeSizer and ArchiveBuilder ports. Process-backed
// implementations (chown, du, dpkg-deb) and native ones are provided.
package stage
